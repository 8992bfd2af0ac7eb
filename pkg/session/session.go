// Package session drives single request / response exchanges with an NCI
// scale over a half-duplex byte stream.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fako1024/nciscale/pkg/scale"
	"github.com/fatih/stopwatch"
)

const (
	defaultReadTimeout      = 2 * time.Second
	defaultInterByteTimeout = 250 * time.Millisecond
)

// Transport denotes the byte stream the scale is attached to
type Transport interface {

	// Write sends p, returning nci.ErrTimeout or nci.ErrClosed on failure
	Write(p []byte) (int, error)

	// Read reads up to len(p) bytes, waiting at most timeout. It returns 0
	// (and no error) if the timeout elapsed without data, nci.ErrClosed if the
	// transport is closed
	Read(p []byte, timeout time.Duration) (int, error)
}

// InputFlusher is implemented by transports able to discard unread input
type InputFlusher interface {
	FlushInput() error
}

// Observer is notified about the result of each exchange
type Observer interface {
	Observe(cmd nci.Command, res Result, err error)
}

// Result denotes the outcome of a single exchange
type Result struct {
	Command nci.Command
	Raw     []byte
	Outcome nci.Outcome
	Elapsed time.Duration
}

// Driver performs exchanges one at a time: it never has more than one
// request in flight on the transport
type Driver struct {
	transport        Transport
	readTimeout      time.Duration
	interByteTimeout time.Duration
	observer         Observer
	logger           scale.Logger

	mu sync.Mutex
}

// Option denotes a functional option for the Driver
type Option func(*Driver)

// WithReadTimeout sets the maximum time to wait for the first response byte
func WithReadTimeout(d time.Duration) Option {
	return func(drv *Driver) {
		drv.readTimeout = d
	}
}

// WithInterByteTimeout sets the maximum gap between two chunks of a response
func WithInterByteTimeout(d time.Duration) Option {
	return func(drv *Driver) {
		drv.interByteTimeout = d
	}
}

// WithObserver sets an observer that is notified after every exchange
func WithObserver(o Observer) Option {
	return func(drv *Driver) {
		drv.observer = o
	}
}

// WithLogger sets a logger
func WithLogger(logger scale.Logger) Option {
	return func(drv *Driver) {
		drv.logger = logger
	}
}

// New instantiates a new Driver on top of the provided transport
func New(t Transport, options ...Option) *Driver {
	drv := &Driver{
		transport:        t,
		readTimeout:      defaultReadTimeout,
		interByteTimeout: defaultInterByteTimeout,
		logger:           &scale.NullLogger{},
	}
	for _, option := range options {
		option(drv)
	}

	return drv
}

// Exchange sends cmd and reads / classifies the response. Transport failures
// (including a silent scale, reported as nci.ErrTimeout) are returned as
// error; every response that was received yields a Result with an Outcome.
// The driver never retries.
func (d *Driver) Exchange(ctx context.Context, cmd nci.Command) (res Result, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res.Command = cmd
	timer := stopwatch.Start(0)
	defer func() {
		timer.Stop()
		res.Elapsed = timer.ElapsedTime()
		if d.observer != nil {
			d.observer.Observe(cmd, res, err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return
	}

	if flusher, ok := d.transport.(InputFlusher); ok {
		if ferr := flusher.FlushInput(); ferr != nil {
			d.logger.Warnf("failed to flush input before %s request: %s", cmd, ferr)
		}
	}

	req := cmd.Encode()
	n, werr := d.transport.Write(req)
	if werr != nil {
		err = fmt.Errorf("failed to write %s request: %w", cmd, werr)
		return
	}
	if n != len(req) {
		err = fmt.Errorf("failed to write %s request (%d of %d bytes written): %w", cmd, n, len(req), nci.ErrTimeout)
		return
	}

	if res.Raw, err = d.readResponse(ctx, cmd); err != nil {
		return
	}
	d.logger.Debugf("received %s response: % X", cmd, res.Raw)

	res.Outcome = nci.Classify(cmd, res.Raw)
	return
}

// readResponse collects response bytes into a fresh buffer until the frame
// terminator arrives, the buffer is full or the scale falls silent
func (d *Driver) readResponse(ctx context.Context, cmd nci.Command) ([]byte, error) {
	var (
		buf      = make([]byte, nci.MaxResponseSize)
		n        int
		deadline = time.Now().Add(d.readTimeout)
	)

	for n < len(buf) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wait := time.Until(deadline)
		if n > 0 && wait > d.interByteTimeout {
			wait = d.interByteTimeout
		}
		if wait <= 0 {
			break
		}

		m, err := d.transport.Read(buf[n:], wait)
		n += m
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", cmd, err)
		}
		if m == 0 || nci.Complete(buf[:n]) {
			break
		}
	}

	if n == 0 {
		return nil, fmt.Errorf("no %s response within %v: %w", cmd, d.readTimeout, nci.ErrTimeout)
	}

	return buf[:n], nil
}
