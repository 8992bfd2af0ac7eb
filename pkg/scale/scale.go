package scale

import (
	"context"
	"time"

	"github.com/fako1024/nciscale/pkg/nci"
)

// Basic denotes a basic serial weighing scale
type Basic interface {

	// ConnectionStatus returns the current connection status of the scale device
	ConnectionStatus() ConnectionStatus

	// Unit returns the last weight unit reported by the scale
	Unit() Unit

	// Weight requests a weight reading
	Weight(ctx context.Context) (DataPoint, error)

	// Status requests the scale status
	Status(ctx context.Context) (nci.Status, error)

	// Zero zeroes the scale
	Zero(ctx context.Context) (nci.Status, error)

	// ChangeUnits toggles the unit of measure, returning the new unit
	ChangeUnits(ctx context.Context) (Unit, error)

	// SetStateChangeHandler defines a handler function that is called upon state change
	SetStateChangeHandler(fn func(status ConnectionStatus))

	// SetStateChangeChannel defines a channel that receives state changes
	SetStateChangeChannel(ch chan ConnectionStatus)

	// SetDataHandler defines a handler function that is called upon retrieval of data
	SetDataHandler(fn func(data DataPoint))

	// SetDataChannel defines a channel that receives data points
	SetDataChannel(ch chan DataPoint)

	// Close terminates the connection to the device
	Close() error
}

// Poller denotes continuous weight acquisition
type Poller interface {

	// Poll requests a weight reading every interval until the context is done
	Poll(ctx context.Context, interval time.Duration) error
}

// Timer denotes host-side timer / stopwatch functionality
type Timer interface {

	// StartTimer starts the timer / stopwatch
	StartTimer() error

	// StopTimer stops the timer / stopwatch
	StopTimer() error

	// ResetTimer resets the timer / stopwatch
	ResetTimer() error

	// ElapsedTime returns the current timer value
	ElapsedTime() time.Duration
}

// Scale denotes the "default" scale containing all functionality
type Scale interface {
	Basic
	Poller
	Timer
}
