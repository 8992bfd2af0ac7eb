package mock

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fako1024/nciscale/pkg/nci"
)

func exchange(t *testing.T, m *Mock, cmd nci.Command) []byte {
	if _, err := m.Write(cmd.Encode()); err != nil {
		t.Fatalf("failed to write %s request: %s", cmd, err)
	}
	buf := make([]byte, nci.MaxResponseSize)
	n, err := m.Read(buf, time.Second)
	if err != nil {
		t.Fatalf("failed to read %s response: %s", cmd, err)
	}
	return buf[:n]
}

func TestResponses(t *testing.T) {
	m := New(WithWeight(12.34, nci.UnitPounds))

	for _, tt := range []struct {
		cmd  nci.Command
		want string
	}{
		{nci.RequestWeight, "\n0012.34lb\r\n\x30\x30\r\x03"},
		{nci.RequestStatus, "\n\x30\x30\r\x03"},
		{nci.ZeroScale, "\n\x32\x30\r\x03"},
		{nci.RequestWeight, "\n0000.00lb\r\n\x32\x30\r\x03"},
	} {
		if got := exchange(t, m, tt.cmd); !bytes.Equal(got, []byte(tt.want)) {
			t.Errorf("%s: got %q, want %q", tt.cmd, got, tt.want)
		}
	}

	m.SetLoad(10)
	if got := exchange(t, m, nci.RequestWeight); !bytes.Equal(got, []byte("\n-002.34lb\r\n\x30\x31\r\x03")) {
		t.Errorf("unexpected response below zero: %q", got)
	}
}

func TestUnitsToggle(t *testing.T) {
	m := New(WithWeight(2.20462262185, nci.UnitPounds))

	if got := exchange(t, m, nci.ChangeUnits); !bytes.Equal(got, []byte("\nkg\r\n\x30\x30\r\x03")) {
		t.Fatalf("unexpected units response: %q", got)
	}
	if got := exchange(t, m, nci.RequestWeight); !bytes.Equal(got, []byte("\n0001.00kg\r\n\x30\x30\r\x03")) {
		t.Fatalf("weight not converted: %q", got)
	}
	if m.Unit() != nci.UnitKilograms {
		t.Fatalf("unexpected unit: %s", m.Unit())
	}
}

func TestMotionAndCapacity(t *testing.T) {
	m := New(WithWeight(0, nci.UnitKilograms), WithSettleTime(time.Hour), WithCapacity(5), WithVariant(nci.SCP02), WithExtendedStatus())
	m.SetLoad(6)

	// Zeroing is refused while the scale is in motion
	if got := exchange(t, m, nci.ZeroScale); !bytes.Equal(got, []byte("\nS\x31\x72\x30\r\x03")) {
		t.Fatalf("unexpected zero response: %q", got)
	}
	st := nci.DecodeStatus(exchange(t, m, nci.RequestStatus)[1:])
	if !st.Valid() || !st.InMotion() || !st.OverCapacity() || st.AtZero() || st.NetWeight() {
		t.Fatalf("unexpected status: %s", st)
	}
}

func TestUnknownRequest(t *testing.T) {
	m := New()
	if _, err := m.Write([]byte("Q\r")); err != nil {
		t.Fatalf("write failed: %s", err)
	}
	buf := make([]byte, 8)
	n, _ := m.Read(buf, 0)
	if !bytes.Equal(buf[:n], nci.UnrecognizedFrame) {
		t.Fatalf("unexpected response to unknown request: %q", buf[:n])
	}
}

func TestChunksAndFlush(t *testing.T) {
	m := New(WithChunkSize(3))
	if _, err := m.Write(nci.RequestStatus.Encode()); err != nil {
		t.Fatalf("write failed: %s", err)
	}

	buf := make([]byte, 16)
	if n, _ := m.Read(buf, 0); n != 3 {
		t.Fatalf("expected chunk of 3 bytes, got %d", n)
	}
	if err := m.FlushInput(); err != nil {
		t.Fatalf("flush failed: %s", err)
	}
	if n, _ := m.Read(buf, 0); n != 0 {
		t.Fatalf("expected no data after flush, got %d bytes", n)
	}

	_ = m.Close()
	if _, err := m.Write(nci.RequestStatus.Encode()); !errors.Is(err, nci.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if len(m.Requests()) != 1 {
		t.Fatalf("unexpected number of recorded requests: %d", len(m.Requests()))
	}
}
