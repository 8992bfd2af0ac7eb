package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fako1024/nciscale/pkg/mock"
	"github.com/fako1024/nciscale/pkg/nci"
)

type recordingObserver struct {
	results []Result
	errs    []error
}

func (o *recordingObserver) Observe(_ nci.Command, res Result, err error) {
	o.results = append(o.results, res)
	o.errs = append(o.errs, err)
}

func TestExchangeWeight(t *testing.T) {
	m := mock.New(mock.WithWeight(12.34, nci.UnitPounds))
	obs := &recordingObserver{}
	drv := New(m, WithObserver(obs))

	res, err := drv.Exchange(context.Background(), nci.RequestWeight)
	if err != nil {
		t.Fatalf("exchange failed: %s", err)
	}
	if !bytes.Equal(res.Raw, []byte("\n0012.34lb\r\n\x30\x30\r\x03")) {
		t.Fatalf("unexpected raw response %q", res.Raw)
	}
	w, ok := res.Outcome.(nci.Weight)
	if !ok {
		t.Fatalf("expected weight outcome, got %#v", res.Outcome)
	}
	if w.Whole != 12 || w.Fraction != 34 || w.Unit != nci.UnitPounds || w.Err() != nil {
		t.Errorf("unexpected reading %s (%v)", w.Reading, w.Err())
	}
	if reqs := m.Requests(); len(reqs) != 1 || !bytes.Equal(reqs[0], []byte("W\r")) {
		t.Errorf("unexpected requests sent: %q", reqs)
	}
	if len(obs.results) != 1 || obs.errs[0] != nil {
		t.Errorf("observer not notified correctly: %+v / %v", obs.results, obs.errs)
	}
}

func TestExchangeChunked(t *testing.T) {
	for _, chunk := range []int{1, 2, 3, 7} {
		m := mock.New(mock.WithWeight(1.5, nci.UnitKilograms), mock.WithVariant(nci.SCP02), mock.WithExtendedStatus(), mock.WithChunkSize(chunk))
		drv := New(m)

		res, err := drv.Exchange(context.Background(), nci.RequestWeight)
		if err != nil {
			t.Fatalf("chunk size %d: exchange failed: %s", chunk, err)
		}
		w, ok := res.Outcome.(nci.Weight)
		if !ok || w.Err() != nil {
			t.Fatalf("chunk size %d: unexpected outcome %#v", chunk, res.Outcome)
		}
		if w.Whole != 1 || w.Fraction != 50 || w.Unit != nci.UnitKilograms {
			t.Errorf("chunk size %d: unexpected reading %s", chunk, w.Reading)
		}
		if w.Status.Variant != nci.SCP02 || !w.Status.HasTertiary {
			t.Errorf("chunk size %d: unexpected status %s", chunk, w.Status)
		}
	}
}

func TestExchangeStatusAndZero(t *testing.T) {
	m := mock.New(mock.WithWeight(5, nci.UnitPounds))
	drv := New(m)

	res, err := drv.Exchange(context.Background(), nci.RequestStatus)
	if err != nil {
		t.Fatalf("status exchange failed: %s", err)
	}
	rep, ok := res.Outcome.(nci.StatusReport)
	if !ok || rep.Err() != nil {
		t.Fatalf("unexpected outcome %#v", res.Outcome)
	}
	if rep.Status.AtZero() {
		t.Errorf("scale unexpectedly reports zero before zeroing")
	}

	res, err = drv.Exchange(context.Background(), nci.ZeroScale)
	if err != nil {
		t.Fatalf("zero exchange failed: %s", err)
	}
	if rep = res.Outcome.(nci.StatusReport); !rep.Status.AtZero() {
		t.Errorf("scale does not report zero after zeroing: %s", rep.Status)
	}
}

func TestExchangeUnits(t *testing.T) {
	m := mock.New(mock.WithWeight(2, nci.UnitPounds))
	drv := New(m)

	res, err := drv.Exchange(context.Background(), nci.ChangeUnits)
	if err != nil {
		t.Fatalf("units exchange failed: %s", err)
	}
	rep, ok := res.Outcome.(nci.StatusReport)
	if !ok || rep.Unit != nci.UnitKilograms {
		t.Fatalf("unexpected outcome %#v", res.Outcome)
	}
}

func TestExchangeFaults(t *testing.T) {
	tests := []struct {
		name      string
		fault     mock.Fault
		wantErr   error
		wantCheck func(nci.Outcome) bool
	}{
		{
			name:    "silent scale",
			fault:   mock.FaultSilent,
			wantErr: nci.ErrTimeout,
		},
		{
			name:  "garbage",
			fault: mock.FaultGarbage,
			wantCheck: func(o nci.Outcome) bool {
				m, ok := o.(nci.Malformed)
				return ok && m.Offset == 0
			},
		},
		{
			name:  "unrecognized",
			fault: mock.FaultUnrecognized,
			wantCheck: func(o nci.Outcome) bool {
				_, ok := o.(nci.Unrecognized)
				return ok
			},
		},
		{
			name:  "bad sentinel",
			fault: mock.FaultBadSentinel,
			wantCheck: func(o nci.Outcome) bool {
				var se *nci.StatusByteError
				return errors.As(o.Err(), &se) && se.Byte == 2
			},
		},
		{
			name:  "truncated",
			fault: mock.FaultTruncated,
			wantCheck: func(o nci.Outcome) bool {
				return nci.IsFramingError(o.Err())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := New(mock.New(mock.WithFault(tt.fault)), WithInterByteTimeout(10*time.Millisecond))

			res, err := drv.Exchange(context.Background(), nci.RequestWeight)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected transport error: %s", err)
			}
			if !tt.wantCheck(res.Outcome) {
				t.Errorf("unexpected outcome %#v (%v)", res.Outcome, res.Outcome.Err())
			}
		})
	}
}

func TestExchangeRecoversAfterFault(t *testing.T) {
	m := mock.New(mock.WithWeight(3, nci.UnitPounds), mock.WithFault(mock.FaultGarbage))
	drv := New(m)

	if res, err := drv.Exchange(context.Background(), nci.RequestWeight); err != nil || res.Outcome.Err() == nil {
		t.Fatalf("expected malformed response, got %v / %v", res.Outcome, err)
	}

	m.SetFault(mock.FaultNone)
	res, err := drv.Exchange(context.Background(), nci.RequestWeight)
	if err != nil || res.Outcome.Err() != nil {
		t.Fatalf("exchange after fault failed: %v / %v", err, res.Outcome)
	}
}

func TestExchangeClosed(t *testing.T) {
	m := mock.New()
	_ = m.Close()

	_, err := New(m).Exchange(context.Background(), nci.RequestStatus)
	if !errors.Is(err, nci.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestExchangeCanceled(t *testing.T) {
	m := mock.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(m).Exchange(ctx, nci.RequestStatus); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(m.Requests()) != 0 {
		t.Fatalf("request was sent despite canceled context")
	}
}

type shortWriter struct {
	mock.Mock
}

func (s *shortWriter) Write(p []byte) (int, error) {
	return len(p) - 1, nil
}

func TestExchangeShortWrite(t *testing.T) {
	_, err := New(&shortWriter{}).Exchange(context.Background(), nci.RequestWeight)
	if !errors.Is(err, nci.ErrTimeout) {
		t.Fatalf("expected ErrTimeout on short write, got %v", err)
	}
}
