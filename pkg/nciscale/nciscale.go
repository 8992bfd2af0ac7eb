// Package nciscale implements a serial NCI (SCP-01 / SCP-02) weighing scale
package nciscale

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fako1024/nciscale/pkg/scale"
	"github.com/fako1024/nciscale/pkg/session"
	"github.com/fako1024/nciscale/pkg/transport"
	"github.com/fatih/stopwatch"
)

// Scale denotes an NCI scale attached to a serial port
type Scale struct {
	connectionStatus scale.ConnectionStatus
	unit             scale.Unit

	timer *stopwatch.Stopwatch

	portConfig       transport.Config
	transport        session.Transport
	driver           *session.Driver
	observer         session.Observer
	retries          int
	readTimeout      time.Duration
	interByteTimeout time.Duration

	stateChangeHandler func(status scale.ConnectionStatus)
	stateChangeChan    chan scale.ConnectionStatus

	dataHandler func(data scale.DataPoint)
	dataChan    chan scale.DataPoint

	logger scale.Logger

	mu sync.RWMutex
}

// New instantiates a new NCI scale, executing functional options, if any. Unless
// a transport is provided via WithTransport, the serial port configured via
// WithPortConfig is opened
func New(options ...func(*Scale)) (*Scale, error) {

	// Initialize a new instance of an NCI scale
	s := &Scale{
		unit:       scale.UnitUnknown,
		portConfig: transport.DefaultConfig(),
		logger:     &scale.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(s)
	}

	// Open the serial port (if no transport was provided as option)
	if s.transport == nil {
		port, err := transport.Open(s.portConfig, transport.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.transport = port
		if s.readTimeout == 0 {
			s.readTimeout = s.portConfig.ReadTimeout
		}
	}

	driverOpts := []session.Option{session.WithLogger(s.logger)}
	if s.readTimeout > 0 {
		driverOpts = append(driverOpts, session.WithReadTimeout(s.readTimeout))
	}
	if s.interByteTimeout > 0 {
		driverOpts = append(driverOpts, session.WithInterByteTimeout(s.interByteTimeout))
	}
	if s.observer != nil {
		driverOpts = append(driverOpts, session.WithObserver(s.observer))
	}
	s.driver = session.New(s.transport, driverOpts...)

	s.setStatus(scale.StateConnected, nil)

	return s, nil
}

// ConnectionStatus returns the current status of the serial link
func (s *Scale) ConnectionStatus() scale.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.connectionStatus
}

// Unit returns the last weight unit reported by the scale
func (s *Scale) Unit() scale.Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.unit
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (s *Scale) SetStateChangeHandler(fn func(status scale.ConnectionStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that receives state changes
func (s *Scale) SetStateChangeChannel(ch chan scale.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stateChangeChan = ch
}

// SetDataHandler defines a handler function that is called upon retrieval of data
func (s *Scale) SetDataHandler(fn func(data scale.DataPoint)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dataHandler = fn
}

// SetDataChannel defines a channel that receives data points
func (s *Scale) SetDataChannel(ch chan scale.DataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dataChan = ch
}

// Weight requests a weight reading. If the response carries invalid status
// bytes, the reading is returned alongside the error
func (s *Scale) Weight(ctx context.Context) (scale.DataPoint, error) {
	out, err := s.exchange(ctx, nci.RequestWeight)
	if err != nil {
		return scale.DataPoint{}, err
	}

	w, ok := out.(nci.Weight)
	if !ok {
		return scale.DataPoint{}, outcomeError(nci.RequestWeight, out)
	}

	dataPoint := scale.NewDataPoint(w.Reading, time.Now())
	if err := outcomeError(nci.RequestWeight, out); err != nil {
		return dataPoint, err
	}

	s.mu.Lock()
	s.unit = dataPoint.Unit
	s.mu.Unlock()

	s.emit(ctx, dataPoint)

	return dataPoint, nil
}

// Status requests the scale status
func (s *Scale) Status(ctx context.Context) (nci.Status, error) {
	return s.statusExchange(ctx, nci.RequestStatus)
}

// Zero zeroes the scale, returning the status reported in response
func (s *Scale) Zero(ctx context.Context) (nci.Status, error) {
	return s.statusExchange(ctx, nci.ZeroScale)
}

// ChangeUnits toggles the unit of measure, returning the new unit
func (s *Scale) ChangeUnits(ctx context.Context) (scale.Unit, error) {
	out, err := s.exchange(ctx, nci.ChangeUnits)
	if err != nil {
		return scale.UnitUnknown, err
	}
	if err := outcomeError(nci.ChangeUnits, out); err != nil {
		return scale.UnitUnknown, err
	}
	rep, ok := out.(nci.StatusReport)
	if !ok {
		return scale.UnitUnknown, fmt.Errorf("unexpected %T in response to %s request", out, nci.ChangeUnits)
	}

	unit := scale.UnitFromNCI(rep.Unit)
	s.mu.Lock()
	s.unit = unit
	s.mu.Unlock()

	return unit, nil
}

// Poll requests a weight reading every interval until the context is done,
// feeding the data handler / channel. Invalid or missing responses are logged
// and polling continues; it stops on a closed transport
func (s *Scale) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid poll interval: %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Weight(ctx); err != nil {
			if errors.Is(err, nci.ErrClosed) {
				return err
			}
			if ctx.Err() == nil {
				s.logger.Warnf("failed to poll weight: %s", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// StartTimer starts the timer / stopwatch
func (s *Scale) StartTimer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil {
		s.timer = stopwatch.Start(0)
	} else {
		s.timer.Start(0)
	}

	return nil
}

// StopTimer stops the timer / stopwatch
func (s *Scale) StopTimer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	return nil
}

// ResetTimer resets the timer / stopwatch
func (s *Scale) ResetTimer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Reset()
	}

	return nil
}

// ElapsedTime returns the current timer value
func (s *Scale) ElapsedTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.timer != nil {
		return s.timer.ElapsedTime()
	}

	return 0
}

// Close terminates the connection to the device
func (s *Scale) Close() error {
	var err error
	if closer, ok := s.transport.(io.Closer); ok {
		err = closer.Close()
	}
	s.setStatus(scale.StateDisconnected, nil)

	return err
}

////////////////////////////////////////////////////////////////////////////////

// exchange performs a single request, repeating it up to the configured number
// of retries if the scale does not answer at all
func (s *Scale) exchange(ctx context.Context, cmd nci.Command) (nci.Outcome, error) {
	for attempt := 0; ; attempt++ {
		res, err := s.driver.Exchange(ctx, cmd)
		if err == nil {
			if s.ConnectionStatus().State != scale.StateConnected {
				s.setStatus(scale.StateConnected, nil)
			}
			return res.Outcome, nil
		}

		switch {
		case errors.Is(err, nci.ErrTimeout) && attempt < s.retries:
			s.logger.Debugf("retrying %s request (attempt %d of %d): %s", cmd, attempt+1, s.retries, err)
			continue
		case errors.Is(err, nci.ErrTimeout):
			s.setStatus(scale.StateUnresponsive, err)
		case errors.Is(err, nci.ErrClosed):
			s.setStatus(scale.StateDisconnected, err)
		}

		return nil, err
	}
}

func (s *Scale) statusExchange(ctx context.Context, cmd nci.Command) (nci.Status, error) {
	out, err := s.exchange(ctx, cmd)
	if err != nil {
		return nci.Status{}, err
	}

	rep, ok := out.(nci.StatusReport)
	if !ok {
		if err := outcomeError(cmd, out); err != nil {
			return nci.Status{}, err
		}
		return nci.Status{}, fmt.Errorf("unexpected %T in response to %s request", out, cmd)
	}

	return rep.Status, outcomeError(cmd, out)
}

func (s *Scale) setStatus(state scale.State, err error) {
	s.mu.Lock()
	s.connectionStatus = scale.ConnectionStatus{
		State: state,
		Error: err,
	}
	status, handler, ch := s.connectionStatus, s.stateChangeHandler, s.stateChangeChan
	s.mu.Unlock()

	s.logger.Debugf("connection state changed to %s", state)

	// Call handler function, if any
	if handler != nil {
		handler(status)
	}

	// Put state change on channel, if any
	if ch != nil {
		select {
		case ch <- status:
		default:
		}
	}
}

func (s *Scale) emit(ctx context.Context, dataPoint scale.DataPoint) {
	s.mu.RLock()
	handler, ch := s.dataHandler, s.dataChan
	s.mu.RUnlock()

	// Call handler function, if any
	if handler != nil {
		handler(dataPoint)
	}

	// Put data point on channel, if any
	if ch != nil {
		select {
		case ch <- dataPoint:
		case <-ctx.Done():
		}
	}
}

func outcomeError(cmd nci.Command, out nci.Outcome) error {
	if err := out.Err(); err != nil {
		return fmt.Errorf("invalid %s response: %w", cmd, err)
	}
	return nil
}
