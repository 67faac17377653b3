// Package transport provides travel modes, the route table produced by the
// trip model, and the per-origin candidate index agents draw destinations from.
package transport

import (
	"fmt"
	"strings"
)

// Mode is the way an agent travels between locations.
type Mode uint8

const (
	ModeCar     Mode = iota // Private vehicle
	ModeTransit             // Public transit, costs more per unit distance
)

// NumModes is the number of travel modes.
const NumModes = 2

// Modes lists every mode in index order.
var Modes = [NumModes]Mode{ModeCar, ModeTransit}

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeCar:
		return "car"
	case ModeTransit:
		return "transit"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode converts a wire name ("car", "transit") into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "car":
		return ModeCar, nil
	case "transit":
		return ModeTransit, nil
	default:
		return 0, fmt.Errorf("unknown travel mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m >= NumModes {
		return nil, fmt.Errorf("invalid travel mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
