package nciscale

import (
	"time"

	"github.com/fako1024/nciscale/pkg/scale"
	"github.com/fako1024/nciscale/pkg/session"
	"github.com/fako1024/nciscale/pkg/transport"
)

// WithTransport sets the byte stream the scale is attached to (e.g. a mock
// device), skipping opening a serial port
func WithTransport(t session.Transport) func(*Scale) {
	return func(s *Scale) {
		s.transport = t
	}
}

// WithPortConfig sets the serial port configuration
func WithPortConfig(cfg transport.Config) func(*Scale) {
	return func(s *Scale) {
		s.portConfig = cfg
	}
}

// WithLogger sets a logger
func WithLogger(logger scale.Logger) func(*Scale) {
	return func(s *Scale) {
		s.logger = logger
	}
}

// WithRetries sets the number of times a request is repeated if the scale
// does not answer
func WithRetries(n int) func(*Scale) {
	return func(s *Scale) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithMetrics sets an observer (usually a metrics collector) notified after
// every exchange
func WithMetrics(o session.Observer) func(*Scale) {
	return func(s *Scale) {
		s.observer = o
	}
}

// WithReadTimeout sets the maximum time to wait for the first response byte
func WithReadTimeout(d time.Duration) func(*Scale) {
	return func(s *Scale) {
		s.readTimeout = d
	}
}

// WithInterByteTimeout sets the maximum gap between two chunks of a response
func WithInterByteTimeout(d time.Duration) func(*Scale) {
	return func(s *Scale) {
		s.interByteTimeout = d
	}
}
