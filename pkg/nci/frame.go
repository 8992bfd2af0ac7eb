package nci

const (

	// LF starts every response frame
	LF = 0x0A

	// CR terminates requests and precedes the ETX of a response
	CR = 0x0D

	// ETX ends every response frame
	ETX = 0x03

	// SP denotes a space character (lb-oz display form)
	SP = 0x20

	// UnrecognizedMarker is the body of the response to any unknown command
	UnrecognizedMarker = '?'

	// SCP02Marker prefixes the status bytes in the SCP-02 variant
	SCP02Marker = 'S'

	// MaxResponseSize denotes the maximum size of a single response frame
	MaxResponseSize = 32

	// MaxFieldDigits limits the number of digits accepted per weight field
	MaxFieldDigits = 6
)

// Status byte bit masks. The meaning of bits 0-3 depends on the position of
// the status byte, see the accessors on Status.
const (
	BitMotionUnderRange  = 0x01
	BitZeroOverRange     = 0x02
	BitMemoryNet         = 0x04
	BitCalibration       = 0x08
	BitSentinel          = 0x30
	BitContinuation      = 0x40
	BitParity            = 0x80
	rangeMask            = BitMotionUnderRange | BitZeroOverRange
	sentinelOK           = BitSentinel
	unrecognizedFrameLen = 4
)

// UnrecognizedFrame is the complete response to an unrecognized command
var UnrecognizedFrame = []byte{LF, UnrecognizedMarker, CR, ETX}

// Variant denotes the framing variant of the status bytes
type Variant int

const (

	// SCP01 denotes plain status bytes
	SCP01 Variant = iota

	// SCP02 denotes status bytes prefixed by an 'S' marker
	SCP02
)

// String returns a human-readable representation of the variant
func (v Variant) String() string {
	if v == SCP02 {
		return "SCP-02"
	}
	return "SCP-01"
}

// Unit denotes the unit of measure reported by the scale
type Unit int

const (

	// UnitUnknown denotes a missing / unparsed unit
	UnitUnknown Unit = iota

	// UnitPounds denotes "lb"
	UnitPounds

	// UnitKilograms denotes "kg"
	UnitKilograms
)

// String returns the wire abbreviation of the unit
func (u Unit) String() string {
	switch u {
	case UnitPounds:
		return "lb"
	case UnitKilograms:
		return "kg"
	default:
		return "--"
	}
}

// parseUnit decodes a two-character unit code, case-insensitive
func parseUnit(a, b byte) Unit {
	switch {
	case lower(a) == 'l' && lower(b) == 'b':
		return UnitPounds
	case lower(a) == 'k' && lower(b) == 'g':
		return UnitKilograms
	default:
		return UnitUnknown
	}
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isUnrecognized reports if the buffer holds the unrecognized command frame,
// allowing the trailing CR ETX to be cut short
func isUnrecognized(buf []byte) bool {
	if len(buf) < 2 || len(buf) > unrecognizedFrameLen {
		return false
	}
	for i := range buf {
		if buf[i] != UnrecognizedFrame[i] {
			return false
		}
	}
	return true
}
