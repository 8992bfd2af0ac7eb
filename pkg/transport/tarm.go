package transport

import (
	"time"

	tarm "github.com/tarm/serial"
)

// tarmPollInterval is the read timeout the tarm port is opened with. The port
// cannot change it afterwards, so Port.Read polls in these steps until its own
// deadline elapses (tarm rounds timeouts to deciseconds on POSIX systems)
const tarmPollInterval = 100 * time.Millisecond

// tarmPort adapts a tarm serial port, which fixes its read timeout when the
// port is opened
type tarmPort struct {
	*tarm.Port
}

func openTarm(cfg Config) (backend, error) {
	tc := &tarm.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        byte(cfg.DataBits),
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
		ReadTimeout: tarmPollInterval,
	}
	switch cfg.Parity {
	case ParityOdd:
		tc.Parity = tarm.ParityOdd
	case ParityEven:
		tc.Parity = tarm.ParityEven
	}
	if cfg.StopBits == 2 {
		tc.StopBits = tarm.Stop2
	}

	port, err := tarm.OpenPort(tc)
	if err != nil {
		return nil, err
	}

	return &tarmPort{Port: port}, nil
}

// SetReadTimeout is a no-op: every read returns after at most tarmPollInterval
func (t *tarmPort) SetReadTimeout(time.Duration) error {
	return nil
}

// ResetInputBuffer discards unread input
func (t *tarmPort) ResetInputBuffer() error {
	return t.Port.Flush()
}
