package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveRequest("GET", 206, 500)
	m.ObserveRequest("GET", 206, 0)
	m.IncOutcome(OutcomePartial)
	m.ObserveBackend("get", "ok", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "206")))
	assert.Equal(t, 500.0, testutil.ToFloat64(m.bytesServed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues(OutcomePartial)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.backendDuration))
}

func TestMustNewMetricsReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.IncOutcome(OutcomeFull)
	second.IncOutcome(OutcomeFull)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.outcomes.WithLabelValues(OutcomeFull)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", 200, 1)
		m.IncOutcome(OutcomeFull)
		m.ObserveBackend("stat", "ok", time.Second)
	})
}
