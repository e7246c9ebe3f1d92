package domain

import "fmt"

// BlockState is the three-valued block flag carried by sites and resources.
//
// Unknown means no verdict has been recorded yet; it is distinct from
// Allowed. A site that is Blocked stays Blocked until a user or policy
// flips it; reputation lookups never auto-revert an explicit block.
type BlockState uint8

const (
	// BlockStateUnknown means no verdict exists yet.
	BlockStateUnknown BlockState = iota
	// BlockStateAllowed means a verdict explicitly cleared the record.
	BlockStateAllowed
	// BlockStateBlocked means a verdict or policy marked the record bad.
	BlockStateBlocked
)

// String returns a stable string representation of the state.
func (b BlockState) String() string {
	switch b {
	case BlockStateUnknown:
		return "unknown"
	case BlockStateAllowed:
		return "allowed"
	case BlockStateBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("BlockState(%d)", uint8(b))
	}
}

// SQLValue maps the state onto the persisted tristate column:
// NULL for unknown, 0 for allowed, 1 for blocked.
func (b BlockState) SQLValue() any {
	switch b {
	case BlockStateAllowed:
		return int64(0)
	case BlockStateBlocked:
		return int64(1)
	default:
		return nil
	}
}

// BlockStateFromSQL converts a scanned tristate column back into a BlockState.
// NULL and unrecognized values map to unknown.
func BlockStateFromSQL(v any) BlockState {
	switch n := v.(type) {
	case nil:
		return BlockStateUnknown
	case int64:
		if n == 1 {
			return BlockStateBlocked
		}
		return BlockStateAllowed
	case int:
		if n == 1 {
			return BlockStateBlocked
		}
		return BlockStateAllowed
	case bool:
		if n {
			return BlockStateBlocked
		}
		return BlockStateAllowed
	default:
		return BlockStateUnknown
	}
}
