package transport

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/fako1024/nciscale/pkg/nci"
	bugst "go.bug.st/serial"
)

type fakeBackend struct {
	chunks  [][]byte
	written []byte
	cts     bool
	dsr     bool
	dtr     bool
	rts     bool
	resets  int
	readErr error
	closed  bool

	// idle is the number of empty reads before chunks are delivered
	idle int
}

func (f *fakeBackend) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.idle > 0 {
		f.idle--
		return 0, nil
	}
	if len(f.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, f.chunks[0])
	if n < len(f.chunks[0]) {
		f.chunks[0] = f.chunks[0][n:]
	} else {
		f.chunks = f.chunks[1:]
	}
	return n, nil
}

func (f *fakeBackend) Write(p []byte) (int, error) {
	if f.closed {
		return 0, &bugst.PortError{}
	}
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeBackend) SetReadTimeout(time.Duration) error { return nil }
func (f *fakeBackend) SetDTR(dtr bool) error               { f.dtr = dtr; return nil }
func (f *fakeBackend) SetRTS(rts bool) error               { f.rts = rts; return nil }
func (f *fakeBackend) ResetInputBuffer() error             { f.resets++; return nil }
func (f *fakeBackend) Close() error                        { f.closed = true; return nil }

func (f *fakeBackend) GetModemStatusBits() (*bugst.ModemStatusBits, error) {
	return &bugst.ModemStatusBits{CTS: f.cts, DSR: f.dsr}, nil
}

func testConfig(flow FlowControl) Config {
	cfg := DefaultConfig()
	cfg.Port = "/dev/ttyFAKE0"
	cfg.FlowControl = flow
	cfg.WriteTimeout = 50 * time.Millisecond
	return cfg
}

func TestPortSetup(t *testing.T) {
	fb := &fakeBackend{}
	p, err := newPort(testConfig(FlowRTSCTS), fb)
	if err != nil {
		t.Fatalf("failed to set up port: %s", err)
	}
	if !fb.dtr || !fb.rts {
		t.Errorf("DTR / RTS not asserted on open: dtr=%v, rts=%v", fb.dtr, fb.rts)
	}
	if fb.resets != 1 {
		t.Errorf("input buffer not purged on open")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("failed to close port: %s", err)
	}
	if fb.dtr || fb.rts || !fb.closed {
		t.Errorf("port not released on close: dtr=%v, rts=%v, closed=%v", fb.dtr, fb.rts, fb.closed)
	}
	if _, err := p.Write([]byte("W\r")); !errors.Is(err, nci.ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
	if _, err := p.Read(make([]byte, 8), time.Millisecond); !errors.Is(err, nci.ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestPortXonXoff(t *testing.T) {
	fb := &fakeBackend{
		chunks: [][]byte{
			{XOFF},
			{'x', XON},
			{nci.LF, XOFF, '0', '0', XON, nci.CR},
		},
	}
	p, err := newPort(testConfig(FlowXonXoff), fb)
	if err != nil {
		t.Fatalf("failed to set up port: %s", err)
	}

	// XOFF alone yields no data, the following chunk resumes transmission
	buf := make([]byte, 16)
	n, err := p.Read(buf, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("read failed: %s", err)
	}
	if !bytes.Equal(buf[:n], []byte{'x'}) {
		t.Fatalf("unexpected data %q", buf[:n])
	}
	if p.paused {
		t.Fatalf("port still paused after XON")
	}

	n, err = p.Read(buf, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("read failed: %s", err)
	}
	if !bytes.Equal(buf[:n], []byte{nci.LF, '0', '0', nci.CR}) {
		t.Fatalf("flow control characters not filtered: %q", buf[:n])
	}
}

func TestPortXoffBlocksWrite(t *testing.T) {
	fb := &fakeBackend{}
	p, err := newPort(testConfig(FlowXonXoff), fb)
	if err != nil {
		t.Fatalf("failed to set up port: %s", err)
	}

	p.paused = true
	if _, err := p.Write([]byte("W\r")); !errors.Is(err, nci.ErrTimeout) {
		t.Fatalf("expected ErrTimeout while paused, got %v", err)
	}
	if len(fb.written) != 0 {
		t.Fatalf("data written while paused: %q", fb.written)
	}

	fb.chunks = [][]byte{{'?', XON}}
	if _, err := p.Write([]byte("W\r")); err != nil {
		t.Fatalf("write after XON failed: %s", err)
	}
	if !bytes.Equal(fb.written, []byte("W\r")) {
		t.Fatalf("unexpected data written: %q", fb.written)
	}
}

func TestPortHardwareFlowControl(t *testing.T) {
	for _, tt := range []struct {
		flow  FlowControl
		ready func(*fakeBackend)
	}{
		{FlowRTSCTS, func(f *fakeBackend) { f.cts = true }},
		{FlowCTS, func(f *fakeBackend) { f.cts = true }},
		{FlowDTRDSR, func(f *fakeBackend) { f.dsr = true }},
	} {
		fb := &fakeBackend{}
		p, err := newPort(testConfig(tt.flow), fb)
		if err != nil {
			t.Fatalf("%s: failed to set up port: %s", tt.flow, err)
		}

		if _, err := p.Write([]byte("S\r")); !errors.Is(err, nci.ErrTimeout) {
			t.Fatalf("%s: expected ErrTimeout without handshake, got %v", tt.flow, err)
		}

		tt.ready(fb)
		if _, err := p.Write([]byte("S\r")); err != nil {
			t.Fatalf("%s: write failed after handshake: %s", tt.flow, err)
		}
	}

	// Without hardware flow control the modem lines are ignored
	fb := &fakeBackend{}
	p, err := newPort(testConfig(FlowNone), fb)
	if err != nil {
		t.Fatalf("failed to set up port: %s", err)
	}
	if _, err := p.Write([]byte("Z\r")); err != nil {
		t.Fatalf("write failed: %s", err)
	}
}

func TestPortReadTimeout(t *testing.T) {
	p, err := newPort(testConfig(FlowNone), &fakeBackend{readErr: io.EOF})
	if err != nil {
		t.Fatalf("failed to set up port: %s", err)
	}
	n, err := p.Read(make([]byte, 8), 10*time.Millisecond)
	if n != 0 || err != nil {
		t.Fatalf("expected silent timeout, got %d / %v", n, err)
	}
}

func TestPortReadPollsUntilDeadline(t *testing.T) {

	// A backend with a fixed short timeout returns empty reads before data arrives
	fb := &fakeBackend{idle: 3, chunks: [][]byte{{nci.LF, '0'}}}
	p, err := newPort(testConfig(FlowNone), fb)
	if err != nil {
		t.Fatalf("failed to set up port: %s", err)
	}

	buf := make([]byte, 8)
	n, err := p.Read(buf, time.Second)
	if err != nil {
		t.Fatalf("read failed: %s", err)
	}
	if !bytes.Equal(buf[:n], []byte{nci.LF, '0'}) {
		t.Fatalf("unexpected data %q", buf[:n])
	}

	start := time.Now()
	if n, err = p.Read(buf, 20*time.Millisecond); n != 0 || err != nil {
		t.Fatalf("expected silent timeout, got %d / %v", n, err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("read returned before its deadline after %v", elapsed)
	}
}

func TestTranslateError(t *testing.T) {
	if err := translateError(&bugst.PortError{}); errors.Is(err, nci.ErrClosed) {
		t.Errorf("generic port error mapped to ErrClosed: %v", err)
	}
	if err := translateError(os.ErrClosed); !errors.Is(err, nci.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := translateError(os.ErrDeadlineExceeded); !errors.Is(err, nci.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if translateError(nil) != nil {
		t.Errorf("nil error not preserved")
	}
}
