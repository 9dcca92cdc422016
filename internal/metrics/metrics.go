// Package metrics exposes the Prometheus collectors reported by the object server.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels reported by the asset handler.
const (
	OutcomeFull               = "full"
	OutcomePartial            = "partial"
	OutcomeNotModified        = "not_modified"
	OutcomePreconditionFailed = "precondition_failed"
	OutcomeUnsatisfiable      = "unsatisfiable"
	OutcomeNotFound           = "not_found"
	OutcomeBadKey             = "bad_key"
	OutcomeMethodNotAllowed   = "method_not_allowed"
	OutcomeError              = "error"
)

// Metrics groups the server collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	requests        *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	bytesServed     prometheus.Counter
	backendDuration *prometheus.HistogramVec
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same name. Any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		requests: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "objserve",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method and status code.",
			},
			[]string{"method", "code"},
		)),
		outcomes: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "objserve",
				Subsystem: "assets",
				Name:      "outcomes_total",
				Help:      "Asset responses by outcome.",
			},
			[]string{"outcome"},
		)),
		bytesServed: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "objserve",
				Subsystem: "http",
				Name:      "response_bytes_total",
				Help:      "Response body bytes written to clients.",
			},
		)),
		backendDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "objserve",
				Subsystem: "backend",
				Name:      "call_duration_seconds",
				Help:      "Latency of object backend calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveRequest counts a finished HTTP request.
func (m *Metrics) ObserveRequest(method string, status int, bytes int64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	if bytes > 0 {
		m.bytesServed.Add(float64(bytes))
	}
}

// IncOutcome counts an asset response outcome.
func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// ObserveBackend records the latency of a backend operation.
func (m *Metrics) ObserveBackend(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(op, result).Observe(d.Seconds())
}
