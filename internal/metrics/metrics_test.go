package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestHTTPMetrics_RequestLifecycle(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry)

	m.RequestStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))

	m.RequestFinished("GET", "/orders/{id}", 404, 15*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/orders/{id}", "404")))

	family := findMetric(t, registry, "orders_http_request_duration_seconds")
	require.Len(t, family.GetMetric(), 1)
	assert.Equal(t, uint64(1), family.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestHTTPMetrics_ReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := NewHTTPMetrics(registry)
	second := NewHTTPMetrics(registry)

	first.RequestStarted()
	first.RequestFinished("POST", "/orders", 201, time.Millisecond)
	second.RequestStarted()
	second.RequestFinished("POST", "/orders", 201, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.requests.WithLabelValues("POST", "/orders", "201")))
}

func TestOutboxMetrics_RecordAttempt(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewOutboxMetrics(registry)

	m.RecordAttempt(OutboxResultSent)
	m.RecordAttempt(OutboxResultSent)
	m.RecordAttempt(OutboxResultRetryError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.publishAttempts.WithLabelValues(OutboxResultSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishAttempts.WithLabelValues(OutboxResultRetryError)))
}

func TestOutboxMetrics_SetBacklog(t *testing.T) {
	m := NewOutboxMetrics(prometheus.NewRegistry())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	m.SetBacklog(3, now.Add(-30*time.Second), now)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending))
	assert.InDelta(t, 30.0, testutil.ToFloat64(m.oldestAge), 0.001)

	m.SetBacklog(1, now.Add(time.Minute), now)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.oldestAge))

	m.SetBacklog(0, time.Time{}, now)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.oldestAge))
}

func TestRegisterGauge_PanicsOnTypeMismatch(t *testing.T) {
	registry := prometheus.NewRegistry()
	registerCounterVec(registry, prometheus.CounterOpts{Name: "orders_conflict"}, nil)

	assert.Panics(t, func() {
		registerGauge(registry, prometheus.GaugeOpts{Name: "orders_conflict"})
	})
}
