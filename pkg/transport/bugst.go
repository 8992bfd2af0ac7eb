package transport

import (
	bugst "go.bug.st/serial"
)

func openBugst(cfg Config) (backend, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
		InitialStatusBits: &bugst.ModemOutputBits{
			DTR: true,
			RTS: true,
		},
	}
	switch cfg.Parity {
	case ParityOdd:
		mode.Parity = bugst.OddParity
	case ParityEven:
		mode.Parity = bugst.EvenParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	}

	return bugst.Open(cfg.Port, mode)
}
