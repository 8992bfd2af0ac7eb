package transport

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultBaudRate     = 9600
	defaultDataBits     = 8
	defaultStopBits     = 1
	defaultReadTimeout  = 2 * time.Second
	defaultWriteTimeout = time.Second
)

// Driver denotes the serial port implementation used to access the port
type Driver string

const (

	// DriverBugst uses go.bug.st/serial (supports modem control lines)
	DriverBugst Driver = "bugst"

	// DriverTarm uses github.com/tarm/serial (no modem control lines)
	DriverTarm Driver = "tarm"
)

// Parity denotes the parity mode of the link
type Parity int

const (

	// ParityNone disables parity
	ParityNone Parity = iota

	// ParityOdd enables odd parity
	ParityOdd

	// ParityEven enables even parity
	ParityEven
)

// String returns the configuration name of the parity mode
func (p Parity) String() string {
	switch p {
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return "none"
	}
}

// ParseParity resolves a parity mode by name ("none", "odd", "even")
func ParseParity(s string) (Parity, error) {
	for _, p := range []Parity{ParityNone, ParityOdd, ParityEven} {
		if strings.EqualFold(strings.TrimSpace(s), p.String()) {
			return p, nil
		}
	}
	return ParityNone, fmt.Errorf("unknown parity `%s`", s)
}

// FlowControl denotes the handshake discipline of the link. Exactly one mode
// is selected at configuration time.
type FlowControl int

const (

	// FlowNone disables flow control
	FlowNone FlowControl = iota

	// FlowXonXoff enables software flow control (XON=0x11 / XOFF=0x13)
	FlowXonXoff

	// FlowRTSCTS asserts RTS and waits for CTS before sending
	FlowRTSCTS

	// FlowRTS asserts RTS while the port is open
	FlowRTS

	// FlowCTS waits for CTS before sending
	FlowCTS

	// FlowDTRDSR asserts DTR and waits for DSR before sending
	FlowDTRDSR
)

var flowControlNames = map[FlowControl]string{
	FlowNone:    "none",
	FlowXonXoff: "xonxoff",
	FlowRTSCTS:  "rtscts",
	FlowRTS:     "rts",
	FlowCTS:     "cts",
	FlowDTRDSR:  "dtrdsr",
}

// String returns the configuration name of the flow control mode
func (f FlowControl) String() string {
	if name, ok := flowControlNames[f]; ok {
		return name
	}
	return fmt.Sprintf("flowcontrol(%d)", int(f))
}

// ParseFlowControl resolves a flow control mode by name, ignoring case and
// separators (e.g. "XON/XOFF", "rts-cts")
func ParseFlowControl(s string) (FlowControl, error) {
	normalized := strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	if normalized == "" {
		return FlowNone, nil
	}
	for f, name := range flowControlNames {
		if name == normalized {
			return f, nil
		}
	}
	return FlowNone, fmt.Errorf("unknown flow control mode `%s`", s)
}

// Legacy handshake option bits as stored in old device configurations
const (
	HandshakeMaskNone    = 0x01
	HandshakeMaskRTSCTS  = 0x02
	HandshakeMaskCTS     = 0x04
	HandshakeMaskRTS     = 0x08
	HandshakeMaskXonXoff = 0x10
	HandshakeMaskDTRDSR  = 0x20
)

// FlowControlFromMask selects the flow control mode from a legacy handshake
// option mask. If several bits are set, the highest priority mode wins:
// XON/XOFF > RTS/CTS > RTS > CTS > DTR/DSR
func FlowControlFromMask(mask byte) FlowControl {
	switch {
	case mask&HandshakeMaskXonXoff != 0:
		return FlowXonXoff
	case mask&HandshakeMaskRTSCTS != 0:
		return FlowRTSCTS
	case mask&HandshakeMaskRTS != 0:
		return FlowRTS
	case mask&HandshakeMaskCTS != 0:
		return FlowCTS
	case mask&HandshakeMaskDTRDSR != 0:
		return FlowDTRDSR
	default:
		return FlowNone
	}
}

// Legacy byte format option bits
const (
	FormatMaskOddParity  = 0x08
	FormatMaskEvenParity = 0x18
	FormatMaskTwoStop    = 0x04
	FormatMask7Bits      = 0x02
	FormatMask8Bits      = 0x03
)

// Format denotes the character framing of the link
type Format struct {
	DataBits int
	StopBits int
	Parity   Parity
}

// FormatFromMask decodes a legacy byte format option mask
func FormatFromMask(mask byte) Format {
	f := Format{DataBits: 8, StopBits: 1}
	if mask&FormatMask8Bits == FormatMask7Bits {
		f.DataBits = 7
	}
	if mask&FormatMaskTwoStop != 0 {
		f.StopBits = 2
	}
	switch mask & FormatMaskEvenParity {
	case FormatMaskEvenParity:
		f.Parity = ParityEven
	case FormatMaskOddParity:
		f.Parity = ParityOdd
	}

	return f
}

// Config denotes the serial port configuration
type Config struct {
	Port         string
	Driver       Driver
	BaudRate     int
	DataBits     int
	StopBits     int
	Parity       Parity
	FlowControl  FlowControl
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the settings used by NCI scales out of the box:
// 9600 baud, 8N1, XON/XOFF
func DefaultConfig() Config {
	return Config{
		Driver:       DriverBugst,
		BaudRate:     defaultBaudRate,
		DataBits:     defaultDataBits,
		StopBits:     defaultStopBits,
		Parity:       ParityNone,
		FlowControl:  FlowXonXoff,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("no serial port specified")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate: %d", c.BaudRate)
	}
	if c.DataBits != 7 && c.DataBits != 8 {
		return fmt.Errorf("invalid number of data bits: %d", c.DataBits)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return fmt.Errorf("invalid number of stop bits: %d", c.StopBits)
	}
	if c.WriteTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	switch c.Driver {
	case DriverBugst:
	case DriverTarm:
		if c.FlowControl != FlowNone && c.FlowControl != FlowXonXoff {
			return fmt.Errorf("flow control `%s` requires modem control lines, not supported by driver `%s`", c.FlowControl, c.Driver)
		}
	default:
		return fmt.Errorf("unknown serial driver `%s`", c.Driver)
	}

	return nil
}
