// Package transport provides serial port access for NCI scales, supporting
// hardware (RTS / CTS, DTR / DSR) and software (XON / XOFF) flow control.
package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fako1024/nciscale/pkg/scale"
	bugst "go.bug.st/serial"
)

const (

	// XON resumes transmission (software flow control)
	XON = 0x11

	// XOFF pauses transmission (software flow control)
	XOFF = 0x13

	modemPollInterval = 10 * time.Millisecond
)

// backend denotes the minimal functionality required from a serial port driver
type backend interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(d time.Duration) error
	Close() error
}

// modemLines is implemented by backends providing access to modem control lines
type modemLines interface {
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	GetModemStatusBits() (*bugst.ModemStatusBits, error)
}

// inputResetter is implemented by backends able to discard pending input
type inputResetter interface {
	ResetInputBuffer() error
}

// outputResetter is implemented by backends able to discard pending output
type outputResetter interface {
	ResetOutputBuffer() error
}

// Port denotes an open serial port attached to a scale
type Port struct {
	cfg     Config
	backend backend
	logger  scale.Logger

	// paused is set while the peer has requested a transmission stop (XOFF)
	paused bool
	closed bool

	mu sync.Mutex
}

// WithLogger sets a logger for the port
func WithLogger(logger scale.Logger) func(*Port) {
	return func(p *Port) {
		p.logger = logger
	}
}

// ListPorts returns the names of all serial ports present on the system
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}

// PortName returns the conventional device name of the n-th serial port of
// the platform (e.g. COM3 on Windows, /dev/ttyS3 elsewhere)
func PortName(n int) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("COM%d", n)
	}
	return fmt.Sprintf("/dev/ttyS%d", n)
}

// Open opens and configures the serial port described by cfg
func Open(cfg Config, options ...func(*Port)) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid serial configuration: %w", err)
	}

	var (
		b   backend
		err error
	)
	switch cfg.Driver {
	case DriverTarm:
		b, err = openTarm(cfg)
	default:
		b, err = openBugst(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	p, err := newPort(cfg, b, options...)
	if err != nil {
		b.Close()
		return nil, err
	}

	return p, nil
}

// Write sends p to the scale, honoring the configured flow control. It
// returns nci.ErrTimeout if the peer does not become ready within the write
// timeout
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, nci.ErrClosed
	}

	deadline := time.Now().Add(p.cfg.WriteTimeout)
	if err := p.waitClearToSend(deadline); err != nil {
		return 0, err
	}

	n, err := p.backend.Write(b)
	if err != nil {
		return n, translateError(err)
	}

	return n, nil
}

// Read reads up to len(b) bytes, waiting at most timeout. It returns 0 without
// error if no data arrived in time. XON / XOFF characters are consumed and
// never returned to the caller if software flow control is active
func (p *Port) Read(b []byte, timeout time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, nci.ErrClosed
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		if err := p.backend.SetReadTimeout(remaining); err != nil {
			return 0, translateError(err)
		}

		n, err := p.backend.Read(b)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, translateError(err)
		}
		if n == 0 {
			continue
		}

		if p.cfg.FlowControl != FlowXonXoff {
			return n, nil
		}
		if n = p.filterFlowControl(b[:n]); n > 0 {
			return n, nil
		}
	}
}

// FlushInput discards any unread input
func (p *Port) FlushInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nci.ErrClosed
	}
	if r, ok := p.backend.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return fmt.Errorf("failed to reset input buffer: %w", translateError(err))
		}
	}
	return nil
}

// Config returns the configuration of the port
func (p *Port) Config() Config {
	return p.cfg
}

// Close closes the port. Subsequent operations fail with nci.ErrClosed
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if m, ok := p.backend.(modemLines); ok && p.cfg.FlowControl != FlowNone {
		if err := m.SetRTS(false); err != nil {
			p.logger.Warnf("failed to release RTS on %s: %s", p.cfg.Port, err)
		}
		if err := m.SetDTR(false); err != nil {
			p.logger.Warnf("failed to release DTR on %s: %s", p.cfg.Port, err)
		}
	}

	return p.backend.Close()
}

////////////////////////////////////////////////////////////////////////////////

func newPort(cfg Config, b backend, options ...func(*Port)) (*Port, error) {
	p := &Port{
		cfg:     cfg,
		backend: b,
		logger:  &scale.NullLogger{},
	}
	for _, opt := range options {
		opt(p)
	}

	if err := p.setup(); err != nil {
		return nil, err
	}

	return p, nil
}

// setup asserts DTR / RTS and purges any stale data left in the buffers
func (p *Port) setup() error {
	if m, ok := p.backend.(modemLines); ok {
		if err := m.SetDTR(true); err != nil {
			return fmt.Errorf("failed to assert DTR: %w", err)
		}
		if err := m.SetRTS(true); err != nil {
			return fmt.Errorf("failed to assert RTS: %w", err)
		}
	}
	if r, ok := p.backend.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return fmt.Errorf("failed to purge input buffer: %w", err)
		}
	}
	if r, ok := p.backend.(outputResetter); ok {
		if err := r.ResetOutputBuffer(); err != nil {
			return fmt.Errorf("failed to purge output buffer: %w", err)
		}
	}

	p.logger.Debugf("opened %s at %d baud (%d%s%d, flow control %s)",
		p.cfg.Port, p.cfg.BaudRate, p.cfg.DataBits, p.cfg.Parity.String()[:1], p.cfg.StopBits, p.cfg.FlowControl)

	return nil
}

// waitClearToSend blocks until the peer signals readiness according to the
// configured flow control mode
func (p *Port) waitClearToSend(deadline time.Time) error {
	switch p.cfg.FlowControl {
	case FlowXonXoff:
		return p.waitXon(deadline)
	case FlowRTSCTS, FlowCTS:
		return p.waitModem(deadline, "CTS", func(s *bugst.ModemStatusBits) bool { return s.CTS })
	case FlowDTRDSR:
		return p.waitModem(deadline, "DSR", func(s *bugst.ModemStatusBits) bool { return s.DSR })
	default:
		return nil
	}
}

func (p *Port) waitXon(deadline time.Time) error {
	buf := make([]byte, 16)
	for p.paused {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("peer did not send XON: %w", nci.ErrTimeout)
		}
		if err := p.backend.SetReadTimeout(remaining); err != nil {
			return translateError(err)
		}
		n, err := p.backend.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return translateError(err)
		}

		// Anything other than flow control characters is stale at this point
		if dropped := p.filterFlowControl(buf[:n]); dropped > 0 {
			p.logger.Debugf("discarded %d stale bytes while waiting for XON", dropped)
		}
	}
	return nil
}

func (p *Port) waitModem(deadline time.Time, line string, ready func(*bugst.ModemStatusBits) bool) error {
	m, ok := p.backend.(modemLines)
	if !ok {
		return nil
	}
	for {
		bits, err := m.GetModemStatusBits()
		if err != nil {
			return fmt.Errorf("failed to read modem status: %w", translateError(err))
		}
		if ready(bits) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s not asserted by peer: %w", line, nci.ErrTimeout)
		}
		time.Sleep(modemPollInterval)
	}
}

// filterFlowControl removes XON / XOFF characters from b in place, updating
// the pause state, and returns the number of remaining bytes
func (p *Port) filterFlowControl(b []byte) int {
	n := 0
	for _, c := range b {
		switch c {
		case XON:
			p.paused = false
		case XOFF:
			p.paused = true
		default:
			b[n] = c
			n++
		}
	}
	return n
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var portErr *bugst.PortError
	if errors.As(err, &portErr) && portErr.Code() == bugst.PortClosed {
		return fmt.Errorf("%s: %w", err, nci.ErrClosed)
	}
	if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%s: %w", err, nci.ErrClosed)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w", err, nci.ErrTimeout)
	}

	return err
}
