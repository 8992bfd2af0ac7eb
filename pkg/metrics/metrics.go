// Package metrics exposes Prometheus metrics about the exchanges performed
// with a scale
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/fako1024/nciscale/pkg/nci"
	"github.com/fako1024/nciscale/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nciscale"

// Outcome labels
const (
	OutcomeWeight        = "weight"
	OutcomeStatus        = "status"
	OutcomeUnrecognized  = "unrecognized"
	OutcomeMalformed     = "malformed"
	OutcomeInvalidStatus = "invalid_status"
	OutcomeNoResponse    = "no_response"
)

// Transport error labels
const (
	ErrorTimeout  = "timeout"
	ErrorClosed   = "closed"
	ErrorCanceled = "canceled"
	ErrorOther    = "other"
)

// Collector denotes a set of Prometheus collectors fed by session results. It
// implements session.Observer
type Collector struct {
	registry *prometheus.Registry

	exchanges       *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	responseBytes   prometheus.Counter
	weight          *prometheus.GaugeVec
	inMotion        prometheus.Gauge
}

// New instantiates a new Collector using its own registry (including the
// default Go runtime / process collectors)
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Number of request / response exchanges by command and outcome",
		}, []string{"command", "outcome"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Number of exchanges that failed on the transport by command and kind",
		}, []string{"command", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Round-trip time of exchanges by command",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"command"}),
		responseBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_bytes_total",
			Help:      "Number of response bytes received",
		}),
		weight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weight",
			Help:      "Last valid weight reading by unit",
		}, []string{"unit"}),
		inMotion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_motion",
			Help:      "1 if the last valid weight reading was taken while the scale was in motion",
		}),
	}

	c.registry.MustRegister(
		c.exchanges,
		c.transportErrors,
		c.duration,
		c.responseBytes,
		c.weight,
		c.inMotion,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry holding all collectors
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the metrics in exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Observe records the result of a single exchange
func (c *Collector) Observe(cmd nci.Command, res session.Result, err error) {
	command := cmd.String()
	c.duration.WithLabelValues(command).Observe(res.Elapsed.Seconds())
	c.responseBytes.Add(float64(len(res.Raw)))

	if err != nil {
		c.transportErrors.WithLabelValues(command, errorKind(err)).Inc()
		c.exchanges.WithLabelValues(command, OutcomeNoResponse).Inc()
		return
	}

	c.exchanges.WithLabelValues(command, outcomeLabel(res.Outcome)).Inc()
	if w, ok := res.Outcome.(nci.Weight); ok && w.Err() == nil {
		c.weight.WithLabelValues(w.Unit.String()).Set(w.Value())
		if w.Status.InMotion() {
			c.inMotion.Set(1)
		} else {
			c.inMotion.Set(0)
		}
	}
}

////////////////////////////////////////////////////////////////////////////////

func outcomeLabel(out nci.Outcome) string {
	switch v := out.(type) {
	case nci.Weight:
		if v.Err() != nil {
			return OutcomeInvalidStatus
		}
		return OutcomeWeight
	case nci.StatusReport:
		if v.Err() != nil {
			return OutcomeInvalidStatus
		}
		return OutcomeStatus
	case nci.Unrecognized:
		return OutcomeUnrecognized
	default:
		return OutcomeMalformed
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, nci.ErrTimeout):
		return ErrorTimeout
	case errors.Is(err, nci.ErrClosed):
		return ErrorClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorCanceled
	default:
		return ErrorOther
	}
}
