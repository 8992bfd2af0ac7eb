package scale

import (
	"time"

	"github.com/fako1024/nciscale/pkg/nci"
)

// Unit denotes the unit of the weight measurement
type Unit string

const (

	// UnitUnknown denotes an unknown / invalid unit
	UnitUnknown Unit = "--"

	// UnitPounds denotes imperial units
	UnitPounds Unit = "lb"

	// UnitKilograms denotes metric units
	UnitKilograms Unit = "kg"
)

// UnitFromNCI converts a protocol unit into a scale unit
func UnitFromNCI(u nci.Unit) Unit {
	switch u {
	case nci.UnitPounds:
		return UnitPounds
	case nci.UnitKilograms:
		return UnitKilograms
	default:
		return UnitUnknown
	}
}

// State denotes a connection state
type State int

const (

	// StateDisconnected is active while no port is open
	StateDisconnected State = iota

	// StateConnected is active while the port is open and the scale answers
	StateConnected

	// StateUnresponsive is active after the scale stopped answering requests
	StateUnresponsive
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateUnresponsive:
		return "unresponsive"
	default:
		return "disconnected"
	}
}

// ConnectionStatus denotes the current status of the serial link
type ConnectionStatus struct {
	Error error
	State
}

// DataPoint denotes a weight measurement at a certain point in time
type DataPoint struct {
	TimeStamp time.Time
	Unit      Unit
	Weight    float64
	Stable    bool
	Status    nci.Status
}

// Value provides a method to retrieve the current value (for interface use)
func (d DataPoint) Value() float64 {
	return d.Weight
}

// NewDataPoint converts a protocol weight reading into a DataPoint
func NewDataPoint(r nci.Reading, ts time.Time) DataPoint {
	return DataPoint{
		TimeStamp: ts,
		Unit:      UnitFromNCI(r.Unit),
		Weight:    r.Value(),
		Stable:    !r.Status.InMotion(),
		Status:    r.Status,
	}
}
