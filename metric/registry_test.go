package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry)
	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())

	// Core metrics must be gatherable without error
	_, err := registry.PrometheusRegistry().Gather()
	assert.NoError(t, err)
}

func TestRegisterCounter_Duplicate(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gate_test_counter_total",
		Help: "test counter",
	})

	require.NoError(t, registry.RegisterCounter("gate", "test_counter", counter))

	other := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gate_test_counter_other_total",
		Help: "other counter",
	})
	err := registry.RegisterCounter("gate", "test_counter", other)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_test_gauge",
		Help: "test gauge",
	})
	require.NoError(t, registry.RegisterGauge("ingest", "test_gauge", gauge))

	assert.True(t, registry.Unregister("ingest", "test_gauge"))
	assert.False(t, registry.Unregister("ingest", "test_gauge"))

	// Re-registration succeeds after unregister
	assert.NoError(t, registry.RegisterGauge("ingest", "test_gauge", gauge))
}

func TestCoreMetricsUsable(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	core.EventsReceived.WithLabelValues("wss://relay.test").Inc()
	core.EventsAdmitted.Inc()
	core.EventsRejected.WithLabelValues("duplicate").Inc()
	core.AnnotationsPublished.WithLabelValues("nsfw").Add(2)
	core.SourcesConnected.Set(3)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
