package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fako1024/nciscale/pkg/session"
	"github.com/fako1024/nciscale/pkg/transport"
)

const helpText = `Commands
   w  - ask for weight from scale.
   s  - ask for status from scale.
   z  - zero scale.
   u  - change units of measure.
   p  - set port (number or device name) and open port.
   l  - list serial ports.
   h  - print this help text.
   e  - exit.
`

// opener opens the named port and returns the transport attached to it
type opener func(name string) (session.Transport, io.Closer, error)

type console struct {
	out     io.Writer
	open    opener
	options []session.Option

	drv    *session.Driver
	port   string
	closer io.Closer
}

// execute runs a single command line, returning true if the console should exit
func (c *console) execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch strings.ToLower(line[:1]) {
	case "e", "x":
		return true
	case "w":
		c.exchange(ctx, nci.RequestWeight)
	case "s":
		c.exchange(ctx, nci.RequestStatus)
	case "z":
		c.exchange(ctx, nci.ZeroScale)
	case "u":
		c.exchange(ctx, nci.ChangeUnits)
	case "p":
		c.openPort(strings.TrimSpace(line[1:]))
	case "l":
		c.listPorts()
	default:
		fmt.Fprint(c.out, helpText)
	}

	return false
}

func (c *console) exchange(ctx context.Context, cmd nci.Command) {
	if c.drv == nil {
		fmt.Fprintln(c.out, "  No port open, use `p <port>` first.")
		return
	}

	res, err := c.drv.Exchange(ctx, cmd)
	if err != nil {
		fmt.Fprintf(c.out, "  ERROR: %s\n", err)
		return
	}
	fmt.Fprintf(c.out, "  %s\n", describe(res))
}

func (c *console) openPort(arg string) {
	if arg == "" {
		fmt.Fprintln(c.out, "  usage: p <port number | device>")
		return
	}
	name := arg
	if n, err := strconv.Atoi(arg); err == nil {
		name = transport.PortName(n)
	}

	c.close()

	t, closer, err := c.open(name)
	if err != nil {
		fmt.Fprintf(c.out, "ERROR: open port failed: %s\n", err)
		return
	}
	c.drv, c.port, c.closer = session.New(t, c.options...), name, closer
	fmt.Fprintf(c.out, "  Opened port %s.\n", name)
}

func (c *console) listPorts() {
	ports, err := transport.ListPorts()
	if err != nil {
		fmt.Fprintf(c.out, "  ERROR: %s\n", err)
		return
	}
	if len(ports) == 0 {
		fmt.Fprintln(c.out, "  No serial ports found.")
		return
	}
	for _, p := range ports {
		fmt.Fprintf(c.out, "  %s\n", p)
	}
}

func (c *console) close() {
	if c.closer != nil {
		if err := c.closer.Close(); err != nil {
			log.Warnf("failed to close port %s: %s", c.port, err)
		}
	}
	c.drv, c.port, c.closer = nil, "", nil
}

func describe(res session.Result) string {
	switch v := res.Outcome.(type) {
	case nci.Weight:
		if err := v.Err(); err != nil {
			return fmt.Sprintf("Error in response: %s (weight %s)", err, v.Reading)
		}
		return fmt.Sprintf("Response:  weight %s  status %s", v.Reading, statusBytes(v.Status))
	case nci.StatusReport:
		if err := v.Err(); err != nil {
			return fmt.Sprintf("Error in response: %s", err)
		}
		if res.Command == nci.ChangeUnits {
			return fmt.Sprintf("Response:  units %s  status %s", v.Unit, statusBytes(v.Status))
		}
		return fmt.Sprintf("Response:  status %s", statusBytes(v.Status))
	case nci.Unrecognized:
		return "Response: Unrecognized command."
	case nci.Malformed:
		if v.Offset == 0 {
			return "Response has incorrect format."
		}
		return fmt.Sprintf("Error in response: %s at index %d.", v.Reason, v.Offset)
	default:
		return fmt.Sprintf("Unexpected response % X", res.Raw)
	}
}

func statusBytes(st nci.Status) string {
	if st.HasTertiary {
		return fmt.Sprintf("0x%02X 0x%02X 0x%02X", st.Primary, st.Secondary, st.Tertiary)
	}
	return fmt.Sprintf("0x%02X 0x%02X", st.Primary, st.Secondary)
}
