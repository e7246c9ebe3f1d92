package domain

import "fmt"

// Verdict is the external reputation service's classification of a URL.
type Verdict uint8

const (
	// VerdictUnknown means the service gave no usable answer (no key
	// configured, service failure, or an indeterminate status).
	VerdictUnknown Verdict = iota
	// VerdictAllowed means the service cleared the URL.
	VerdictAllowed
	// VerdictBlocked means the service flagged the URL as bad.
	VerdictBlocked
)

// String returns a stable string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictUnknown:
		return "unknown"
	case VerdictAllowed:
		return "allowed"
	case VerdictBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("Verdict(%d)", uint8(v))
	}
}

// BlockState maps the verdict onto the persisted tristate:
// allowed → allowed, blocked → blocked, unknown → unknown (to be rechecked).
func (v Verdict) BlockState() BlockState {
	switch v {
	case VerdictAllowed:
		return BlockStateAllowed
	case VerdictBlocked:
		return BlockStateBlocked
	default:
		return BlockStateUnknown
	}
}
