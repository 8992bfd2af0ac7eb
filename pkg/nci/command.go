package nci

import (
	"fmt"
	"strings"
)

// Command denotes one of the requests supported by the scale
type Command int

const (

	// RequestWeight requests the current weight, units and status ("W")
	RequestWeight Command = iota

	// ChangeUnits toggles the unit of measure ("U")
	ChangeUnits

	// RequestStatus requests the scale status ("S")
	RequestStatus

	// ZeroScale zeroes the scale ("Z")
	ZeroScale
)

var commandCodes = [...]byte{
	RequestWeight: 'W',
	ChangeUnits:   'U',
	RequestStatus: 'S',
	ZeroScale:     'Z',
}

// Commands lists all supported commands
var Commands = []Command{RequestWeight, ChangeUnits, RequestStatus, ZeroScale}

// Code returns the single-character command code
func (c Command) Code() byte {
	if c < 0 || int(c) >= len(commandCodes) {
		return UnrecognizedMarker
	}
	return commandCodes[c]
}

// Encode returns the request frame for the command (code followed by CR)
func (c Command) Encode() []byte {
	return []byte{c.Code(), CR}
}

// Encode returns the request frame for cmd
func Encode(cmd Command) []byte {
	return cmd.Encode()
}

// String returns a human-readable name of the command
func (c Command) String() string {
	switch c {
	case RequestWeight:
		return "weight"
	case ChangeUnits:
		return "units"
	case RequestStatus:
		return "status"
	case ZeroScale:
		return "zero"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// ParseCommand resolves a command from its code or name, case-insensitive
// (e.g. "w", "W" or "weight")
func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, cmd := range Commands {
		if s == cmd.String() || (len(s) == 1 && s[0] == lower(cmd.Code())) {
			return cmd, nil
		}
	}
	return 0, fmt.Errorf("unknown command `%s`", s)
}
