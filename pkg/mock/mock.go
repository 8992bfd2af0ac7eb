// Package mock provides a simulated NCI scale that answers requests on an
// in-memory byte stream. It is intended for testing and for running the tools
// without a physical scale.
package mock

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fatih/stopwatch"
)

const (
	defaultCapacity   = 9999.99
	defaultSettleTime = 0
	poundsPerKilogram = 2.20462262185
)

// Fault denotes a simulated misbehavior of the scale
type Fault int

const (

	// FaultNone denotes a well-behaved scale
	FaultNone Fault = iota

	// FaultSilent makes the scale ignore all requests
	FaultSilent

	// FaultGarbage makes the scale answer with bytes lacking the LF frame start
	FaultGarbage

	// FaultUnrecognized makes the scale reject every request with "?"
	FaultUnrecognized

	// FaultBadSentinel clears the sentinel bits of the second status byte
	FaultBadSentinel

	// FaultTruncated drops the trailing ETX of every response
	FaultTruncated
)

// Mock denotes a simulated NCI scale
type Mock struct {
	gross      float64
	zeroOffset float64
	capacity   float64
	unit       nci.Unit
	variant    nci.Variant
	extended   bool
	fault      Fault
	chunkSize  int

	settleTime time.Duration
	timer      *stopwatch.Stopwatch

	pending  []byte
	requests [][]byte
	closed   bool

	mu sync.Mutex
}

// New instantiates a new Mock scale, executing functional options, if any
func New(options ...func(*Mock)) *Mock {
	m := &Mock{
		capacity:   defaultCapacity,
		unit:       nci.UnitPounds,
		settleTime: defaultSettleTime,
		timer:      stopwatch.Start(0),
	}
	for _, option := range options {
		option(m)
	}

	return m
}

// WithWeight sets the initial gross load and unit
func WithWeight(weight float64, unit nci.Unit) func(*Mock) {
	return func(m *Mock) {
		m.gross, m.unit = weight, unit
	}
}

// WithVariant sets the status framing variant (SCP-01 / SCP-02)
func WithVariant(v nci.Variant) func(*Mock) {
	return func(m *Mock) {
		m.variant = v
	}
}

// WithExtendedStatus makes the scale report the optional third status byte
func WithExtendedStatus() func(*Mock) {
	return func(m *Mock) {
		m.extended = true
	}
}

// WithFault sets a simulated fault
func WithFault(f Fault) func(*Mock) {
	return func(m *Mock) {
		m.fault = f
	}
}

// WithChunkSize limits the number of bytes returned per read
func WithChunkSize(n int) func(*Mock) {
	return func(m *Mock) {
		m.chunkSize = n
	}
}

// WithSettleTime sets the duration the scale reports motion after a load change
func WithSettleTime(d time.Duration) func(*Mock) {
	return func(m *Mock) {
		m.settleTime = d
	}
}

// WithCapacity sets the maximum load of the scale
func WithCapacity(c float64) func(*Mock) {
	return func(m *Mock) {
		m.capacity = c
	}
}

// SetLoad changes the gross load (in the current unit)
func (m *Mock) SetLoad(weight float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gross = weight
	m.timer.Reset()
	m.timer.Start(0)
}

// SetFault changes the simulated fault
func (m *Mock) SetFault(f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fault = f
}

// Unit returns the current unit of measure
func (m *Mock) Unit() nci.Unit {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.unit
}

// Requests returns all raw requests received so far
func (m *Mock) Requests() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([][]byte(nil), m.requests...)
}

// Write receives a request and queues the scale's response
func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, nci.ErrClosed
	}
	m.requests = append(m.requests, append([]byte(nil), p...))

	if m.fault == FaultSilent {
		return len(p), nil
	}
	m.pending = append(m.pending, m.respond(p)...)

	return len(p), nil
}

// Read returns queued response bytes. It returns immediately with 0 bytes if
// nothing is queued, simulating an elapsed timeout.
func (m *Mock) Read(p []byte, _ time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, nci.ErrClosed
	}

	n := len(p)
	if m.chunkSize > 0 && n > m.chunkSize {
		n = m.chunkSize
	}
	n = copy(p[:n], m.pending)
	m.pending = m.pending[n:]

	return n, nil
}

// FlushInput discards all queued response bytes
func (m *Mock) FlushInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = nil
	return nil
}

// Close terminates the simulated link
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (m *Mock) respond(req []byte) []byte {
	if m.fault == FaultUnrecognized || len(req) != 2 || req[1] != nci.CR {
		return append([]byte(nil), nci.UnrecognizedFrame...)
	}

	var resp []byte
	switch req[0] {
	case 'W':
		resp = append([]byte{nci.LF}, m.formatWeight()...)
		resp = append(resp, nci.CR, nci.LF)
	case 'U':
		m.toggleUnit()
		resp = []byte{nci.LF}
		resp = append(resp, m.unit.String()...)
		resp = append(resp, nci.CR, nci.LF)
	case 'Z':
		if !m.inMotion() {
			m.zeroOffset = m.gross
		}
		resp = []byte{nci.LF}
	case 'S':
		resp = []byte{nci.LF}
	default:
		return append([]byte(nil), nci.UnrecognizedFrame...)
	}
	resp = append(resp, m.statusTrailer()...)

	switch m.fault {
	case FaultGarbage:
		resp[0] = '#'
	case FaultTruncated:
		resp = resp[:len(resp)-1]
	}

	return resp
}

func (m *Mock) net() float64 {
	return m.gross - m.zeroOffset
}

func (m *Mock) inMotion() bool {
	return m.timer.ElapsedTime() < m.settleTime
}

func (m *Mock) formatWeight() string {
	w := m.net()
	if w < 0 {
		return fmt.Sprintf("-%06.2f%s", math.Abs(w), m.unit)
	}
	return fmt.Sprintf("%07.2f%s", w, m.unit)
}

func (m *Mock) toggleUnit() {
	factor := poundsPerKilogram
	if m.unit == nci.UnitPounds {
		m.unit, factor = nci.UnitKilograms, 1/poundsPerKilogram
	} else {
		m.unit = nci.UnitPounds
	}
	m.gross *= factor
	m.zeroOffset *= factor
	m.capacity *= factor
}

func (m *Mock) statusTrailer() []byte {
	s1, s2 := byte(nci.BitSentinel), byte(nci.BitSentinel)
	if m.inMotion() {
		s1 |= nci.BitMotionUnderRange
	}
	if math.Abs(m.net()) < 0.005 {
		s1 |= nci.BitZeroOverRange
	}
	if m.net() < 0 {
		s2 |= nci.BitMotionUnderRange
	}
	if m.net() > m.capacity {
		s2 |= nci.BitZeroOverRange
	}
	if m.fault == FaultBadSentinel {
		s2 &^= nci.BitSentinel
	}

	trailer := []byte{}
	if m.variant == nci.SCP02 {
		trailer = append(trailer, nci.SCP02Marker)
	}
	trailer = append(trailer, s1, s2)
	if m.extended {
		trailer[len(trailer)-1] |= nci.BitContinuation
		s3 := byte(nci.BitSentinel)
		if m.zeroOffset != 0 {
			s3 |= nci.BitMemoryNet
		}
		trailer = append(trailer, s3)
	}

	return append(trailer, nci.CR, nci.ETX)
}
