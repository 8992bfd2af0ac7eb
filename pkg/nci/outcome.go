package nci

import (
	"fmt"
	"math"
)

// Outcome is the result of parsing a single response. Exactly one of Weight,
// StatusReport, Unrecognized or Malformed is returned for any input.
type Outcome interface {

	// Err maps the outcome onto the error taxonomy (nil for a fully valid response)
	Err() error

	isOutcome()
}

// Reading denotes a decoded weight reading
type Reading struct {
	Whole          uint32
	Fraction       uint32
	FractionDigits int
	Negative       bool
	Unit           Unit
	Status         Status
}

// Value returns the reading as a floating point number
func (r Reading) Value() float64 {
	v := float64(r.Whole) + float64(r.Fraction)/math.Pow10(r.FractionDigits)
	if r.Negative {
		return -v
	}
	return v
}

// String returns the reading the way the scale displays it
func (r Reading) String() string {
	sign := ""
	if r.Negative {
		sign = "-"
	}
	if r.FractionDigits == 0 {
		return fmt.Sprintf("%s%d %s", sign, r.Whole, r.Unit)
	}
	return fmt.Sprintf("%s%d.%0*d %s", sign, r.Whole, r.FractionDigits, r.Fraction, r.Unit)
}

// Weight denotes a successfully framed weight response
type Weight struct {
	Reading
}

// Err returns the status trailer error, if any
func (w Weight) Err() error {
	return w.Status.Err()
}

func (Weight) isOutcome() {}

// StatusReport denotes a status response (to a status, zero or units request).
// Unit is only set for responses to a units request.
type StatusReport struct {
	Status Status
	Unit   Unit
}

// Err returns the status trailer error, if any
func (s StatusReport) Err() error {
	return s.Status.Err()
}

func (StatusReport) isOutcome() {}

// Unrecognized denotes the "?" response to a command the scale does not know
type Unrecognized struct{}

// Err always returns ErrUnrecognizedCommand
func (Unrecognized) Err() error {
	return ErrUnrecognizedCommand
}

func (Unrecognized) isOutcome() {}

// Malformed denotes a response that violates the frame grammar
type Malformed struct {
	Reason string
	Offset int
}

// Err returns a FramingError locating the violation
func (m Malformed) Err() error {
	return &FramingError{Offset: m.Offset, Reason: m.Reason}
}

func (Malformed) isOutcome() {}
