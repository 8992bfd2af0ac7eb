package nci

import "fmt"

// scanState denotes the state of the weight response scanner
type scanState int

const (
	stateInteger scanState = iota
	statePoint
	stateFraction
	stateUnits
	stateTerminator

	// terminal states
	stateAccept
	stateUnrecognized
	stateMalformed
)

func (s scanState) terminal() bool {
	return s >= stateAccept
}

const reasonTruncated = "truncated response"

// weightScanner walks a weight response one byte at a time:
//
//	<LF>xxxx.xxuu<CR><LF>hh...<CR><ETX>
type weightScanner struct {
	c       cursor
	state   scanState
	reading Reading
	digits  int

	reason    string
	errOffset int
}

// ParseWeight parses the response to a weight request. It never fails to
// return an outcome and never reads beyond the end of buf.
//
// The lb-oz composite form ("xxlb xx.xoz") and display text responses are
// not supported and yield Malformed.
func ParseWeight(buf []byte) Outcome {
	if len(buf) == 0 || buf[0] != LF {
		return Malformed{Reason: "missing LF", Offset: 0}
	}

	s := weightScanner{
		c:     cursor{buf: buf, pos: 1},
		state: stateInteger,
	}
	for !s.state.terminal() {
		b, ok := s.c.peek()
		if !ok {
			s.malformed(reasonTruncated, len(buf))
			break
		}
		s.step(b)
	}

	switch s.state {
	case stateAccept:
		s.reading.Status = decodeStatusAt(buf, s.c.pos)
		return Weight{Reading: s.reading}
	case stateUnrecognized:
		return Unrecognized{}
	default:
		return Malformed{Reason: s.reason, Offset: s.errOffset}
	}
}

func (s *weightScanner) step(b byte) {
	switch s.state {
	case stateInteger:
		if b == '-' && s.c.pos == 1 {
			s.reading.Negative = true
			s.c.advance()
			return
		}
		if !isDigit(b) {
			s.state, s.digits = statePoint, 0
			return
		}
		if s.digits == MaxFieldDigits {
			s.malformed("too many integer digits", s.c.pos)
			return
		}
		s.reading.Whole = s.reading.Whole*10 + uint32(b-'0')
		s.digits++
		s.c.advance()

	case statePoint:
		switch b {
		case '.':
			s.state = stateFraction
			s.c.advance()
		case UnrecognizedMarker:
			s.state = stateUnrecognized
		default:
			s.malformed(fmt.Sprintf("expected decimal point, got 0x%02X", b), s.c.pos)
		}

	case stateFraction:
		if !isDigit(b) {
			s.state = stateUnits
			return
		}
		if s.reading.FractionDigits == MaxFieldDigits {
			s.malformed("too many fractional digits", s.c.pos)
			return
		}
		s.reading.Fraction = s.reading.Fraction*10 + uint32(b-'0')
		s.reading.FractionDigits++
		s.c.advance()

	case stateUnits:
		second, ok := s.peekSecond()
		if !ok {
			return
		}
		unit := parseUnit(b, second)
		if unit == UnitUnknown {
			s.malformed(fmt.Sprintf("unknown units %q", []byte{b, second}), s.c.pos)
			return
		}
		s.reading.Unit = unit
		s.state = stateTerminator
		s.c.advance()
		s.c.advance()

	case stateTerminator:
		if b != CR {
			s.malformed(fmt.Sprintf("bad terminator: expected CR, got 0x%02X", b), s.c.pos)
			return
		}
		second, ok := s.peekSecond()
		if !ok {
			return
		}
		if second != LF {
			s.malformed(fmt.Sprintf("bad terminator: expected LF, got 0x%02X", second), s.c.pos+1)
			return
		}
		s.state = stateAccept
		s.c.advance()
		s.c.advance()
	}
}

// peekSecond returns the byte after the current one, flagging truncation if absent
func (s *weightScanner) peekSecond() (byte, bool) {
	if s.c.pos+1 >= len(s.c.buf) {
		s.malformed(reasonTruncated, len(s.c.buf))
		return 0, false
	}
	return s.c.buf[s.c.pos+1], true
}

func (s *weightScanner) malformed(reason string, offset int) {
	s.state, s.reason, s.errOffset = stateMalformed, reason, offset
}

// ParseUnits parses the response to a change units request:
//
//	<LF>uu<CR><LF>hh...<CR><ETX>
//
// The result is reported as a StatusReport carrying the new unit.
func ParseUnits(buf []byte) Outcome {
	c := cursor{buf: buf}
	if b, ok := c.next(); !ok || b != LF {
		return Malformed{Reason: "missing LF", Offset: 0}
	}
	if isUnrecognized(buf) {
		return Unrecognized{}
	}

	if len(buf) < c.pos+2 {
		return Malformed{Reason: reasonTruncated, Offset: len(buf)}
	}
	unit := parseUnit(buf[c.pos], buf[c.pos+1])
	if unit == UnitUnknown {
		return Malformed{Reason: fmt.Sprintf("unknown units %q", buf[c.pos:c.pos+2]), Offset: c.pos}
	}
	c.advance()
	c.advance()

	for _, want := range []byte{CR, LF} {
		b, ok := c.next()
		if !ok {
			return Malformed{Reason: reasonTruncated, Offset: len(buf)}
		}
		if b != want {
			return Malformed{Reason: fmt.Sprintf("bad terminator: expected 0x%02X, got 0x%02X", want, b), Offset: c.pos - 1}
		}
	}

	return StatusReport{
		Status: decodeStatusAt(buf, c.pos),
		Unit:   unit,
	}
}
