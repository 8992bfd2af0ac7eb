package nci

import (
	"errors"
	"fmt"
)

var (

	// ErrTimeout denotes that the scale did not answer in time
	ErrTimeout = errors.New("nci: transport timeout")

	// ErrClosed denotes an operation on a closed transport
	ErrClosed = errors.New("nci: transport closed")

	// ErrUnrecognizedCommand denotes that the scale rejected the command with "?"
	ErrUnrecognizedCommand = errors.New("nci: unrecognized command")
)

// FramingError denotes a response that does not follow the frame grammar
type FramingError struct {
	Offset int
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("nci: framing error at offset %d: %s", e.Offset, e.Reason)
}

// StatusByteError denotes a status byte whose sentinel bits (4 and 5) are not set
type StatusByteError struct {

	// Byte is the 1-based position of the failing status byte
	Byte   int
	Offset int
}

func (e *StatusByteError) Error() string {
	return fmt.Sprintf("nci: status byte %d invalid at offset %d", e.Byte, e.Offset)
}

// IsFramingError returns true if the error is (or wraps) a FramingError
func IsFramingError(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}

// IsStatusByteError returns true if the error is (or wraps) a StatusByteError
func IsStatusByteError(err error) bool {
	var se *StatusByteError
	return errors.As(err, &se)
}
