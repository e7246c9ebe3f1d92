package domain

import (
	"fmt"
	"strings"
)

// Mode is the global operating state. It gates behavior (recording and
// blocking) but never the validity of already collected data.
type Mode uint8

const (
	// ModeOff disables classification entirely; every request is allowed.
	ModeOff Mode = iota
	// ModeLearning allows everything and records what it sees.
	ModeLearning
	// ModeWarning allows everything but drives UI warning state.
	ModeWarning
	// ModeArmed blocks requests that are marked bad or entirely unknown.
	ModeArmed
)

// String returns a stable string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeLearning:
		return "learning"
	case ModeWarning:
		return "warning"
	case ModeArmed:
		return "armed"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode converts a string into a Mode (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return ModeOff, nil
	case "learning":
		return ModeLearning, nil
	case "warning":
		return ModeWarning, nil
	case "armed":
		return ModeArmed, nil
	default:
		return ModeOff, fmt.Errorf("unsupported mode: %q", s)
	}
}
