package nci

import "fmt"

// StatusResult denotes the outcome of decoding the status bytes of a response.
// The numeric values match the error codes reported by the legacy device test tool.
type StatusResult int

const (

	// StatusOK denotes a fully valid status trailer
	StatusOK StatusResult = iota

	// StatusByte1Invalid denotes a sentinel violation in the first status byte
	StatusByte1Invalid

	// StatusByte2Invalid denotes a sentinel violation in the second status byte
	StatusByte2Invalid

	// StatusByte3Invalid denotes a sentinel violation in the third status byte
	StatusByte3Invalid

	// StatusFramingError denotes missing status bytes or a bad CR / ETX terminator
	StatusFramingError
)

// Range denotes the weighing range reported in the third status byte
type Range int

const (

	// RangeUnknown is reported if no third status byte is present
	RangeUnknown Range = iota

	// RangeLow denotes the low weighing range
	RangeLow

	// RangeHigh denotes the high weighing range
	RangeHigh

	// RangeUndefined denotes one of the two reserved bit patterns
	RangeUndefined
)

// Status denotes the decoded status trailer of a response
type Status struct {
	Primary     byte
	Secondary   byte
	Tertiary    byte
	HasTertiary bool

	Variant Variant
	Result  StatusResult

	// Offset and Reason locate the first failure (if any) within the decoded buffer
	Offset int
	Reason string

	decoded bool
}

// DecodeStatus decodes a status trailer starting either at the first status
// byte (SCP-01) or at an 'S' marker (SCP-02), followed by CR ETX. It never fails
// and never reads beyond the end of the slice: missing bytes are reported as
// StatusFramingError
func DecodeStatus(b []byte) Status {
	return decodeStatusAt(b, 0)
}

// decodeStatusAt decodes the status trailer starting at position start of buf,
// reporting all offsets relative to the start of buf
func decodeStatusAt(buf []byte, start int) Status {
	var (
		st Status
		c  = cursor{buf: buf, pos: start}
	)

	if b, ok := c.peek(); ok && b == SCP02Marker {
		st.Variant = SCP02
		c.advance()
	}

	var ok bool
	if st.Primary, ok = st.readStatusByte(&c, 1); !ok {
		return st
	}
	if st.Secondary, ok = st.readStatusByte(&c, 2); !ok {
		return st
	}
	st.decoded = true
	if st.Continues() {
		if st.Tertiary, ok = st.readStatusByte(&c, 3); !ok {
			return st
		}
		st.HasTertiary = true
	}

	if b, ok := c.next(); !ok {
		st.fail(StatusFramingError, c.pos, "missing CR after status bytes")
		return st
	} else if b != CR {
		st.fail(StatusFramingError, c.pos-1, fmt.Sprintf("expected CR after status bytes, got 0x%02X", b))
		return st
	}
	if b, ok := c.next(); !ok {
		st.fail(StatusFramingError, c.pos, "missing ETX")
		return st
	} else if b != ETX {
		st.fail(StatusFramingError, c.pos-1, fmt.Sprintf("expected ETX, got 0x%02X", b))
		return st
	}

	return st
}

// readStatusByte reads the n-th status byte, validating its sentinel bits. A CR
// in place of a status byte can never be valid and is treated as the start of
// a premature terminator.
func (st *Status) readStatusByte(c *cursor, n int) (byte, bool) {
	b, ok := c.next()
	if !ok || b == CR {
		if ok {
			c.pos--
		}
		st.fail(StatusFramingError, c.pos, fmt.Sprintf("missing status byte %d", n))
		return 0, false
	}
	if b&BitSentinel != sentinelOK {
		st.fail(StatusResult(n), c.pos-1, fmt.Sprintf("sentinel bits not set in status byte %d (0x%02X)", n, b))
	}
	return b, true
}

// fail records a failure unless an earlier one has already been recorded
func (st *Status) fail(res StatusResult, offset int, reason string) {
	if st.Result != StatusOK {
		return
	}
	st.Result, st.Offset, st.Reason = res, offset, reason
}

// Decoded returns true if both mandatory status bytes were read, regardless of
// their validity
func (st Status) Decoded() bool {
	return st.decoded
}

// Err returns the error corresponding to the decode result (nil if valid)
func (st Status) Err() error {
	switch st.Result {
	case StatusOK:
		return nil
	case StatusFramingError:
		return &FramingError{Offset: st.Offset, Reason: st.Reason}
	default:
		return &StatusByteError{Byte: int(st.Result), Offset: st.Offset}
	}
}

// Valid returns true if all status bytes and the terminator were valid
func (st Status) Valid() bool {
	return st.Result == StatusOK
}

// InMotion returns if the scale is in motion (byte 1, bit 0)
func (st Status) InMotion() bool {
	return st.Primary&BitMotionUnderRange != 0
}

// AtZero returns if the scale is at zero (byte 1, bit 1)
func (st Status) AtZero() bool {
	return st.Primary&BitZeroOverRange != 0
}

// RAMError returns if the scale reports a RAM error (byte 1, bit 2)
func (st Status) RAMError() bool {
	return st.Primary&BitMemoryNet != 0
}

// EEPROMError returns if the scale reports an EEPROM error (byte 1, bit 3)
func (st Status) EEPROMError() bool {
	return st.Primary&BitCalibration != 0
}

// UnderCapacity returns if the load is under capacity (byte 2, bit 0)
func (st Status) UnderCapacity() bool {
	return st.Secondary&BitMotionUnderRange != 0
}

// OverCapacity returns if the load is over capacity (byte 2, bit 1)
func (st Status) OverCapacity() bool {
	return st.Secondary&BitZeroOverRange != 0
}

// ROMError returns if the scale reports a ROM error (byte 2, bit 2)
func (st Status) ROMError() bool {
	return st.Secondary&BitMemoryNet != 0
}

// FaultyCalibration returns if the scale reports a faulty calibration (byte 2, bit 3)
func (st Status) FaultyCalibration() bool {
	return st.Secondary&BitCalibration != 0
}

// Continues returns if the second status byte announces a third one (byte 2, bit 6)
func (st Status) Continues() bool {
	return st.Secondary&BitContinuation != 0
}

// Range returns the weighing range (byte 3, bits 0-1)
func (st Status) Range() Range {
	if !st.HasTertiary {
		return RangeUnknown
	}
	switch st.Tertiary & rangeMask {
	case 0x00:
		return RangeLow
	case rangeMask:
		return RangeHigh
	default:
		return RangeUndefined
	}
}

// NetWeight returns if the reading is a net weight (byte 3, bit 2)
func (st Status) NetWeight() bool {
	return st.HasTertiary && st.Tertiary&BitMemoryNet != 0
}

// InitialZeroError returns if the scale reports an initial zero error (byte 3, bit 3)
func (st Status) InitialZeroError() bool {
	return st.HasTertiary && st.Tertiary&BitCalibration != 0
}

// Faulted returns true if any hardware / calibration error flag is raised
func (st Status) Faulted() bool {
	return st.RAMError() || st.EEPROMError() || st.ROMError() || st.FaultyCalibration() || st.InitialZeroError()
}

// String returns a compact representation of the raw status bytes
func (st Status) String() string {
	if st.HasTertiary {
		return fmt.Sprintf("%s 0x%02X 0x%02X 0x%02X", st.Variant, st.Primary, st.Secondary, st.Tertiary)
	}
	return fmt.Sprintf("%s 0x%02X 0x%02X", st.Variant, st.Primary, st.Secondary)
}

////////////////////////////////////////////////////////////////////////////////

// cursor is a bounds-checked read position over an immutable buffer
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) peek() (byte, bool) {
	if c.pos >= len(c.buf) {
		return 0, false
	}
	return c.buf[c.pos], true
}

func (c *cursor) next() (byte, bool) {
	b, ok := c.peek()
	if ok {
		c.pos++
	}
	return b, ok
}

func (c *cursor) advance() {
	if c.pos < len(c.buf) {
		c.pos++
	}
}
