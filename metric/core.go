package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the pipeline-level metrics shared across components.
// Component-specific metrics (cache, worker pool, ingest) register their own
// collectors through the MetricsRegistrar interface.
type Metrics struct {
	EventsReceived       *prometheus.CounterVec
	EventsAdmitted       prometheus.Counter
	EventsRejected       *prometheus.CounterVec
	NotesClassified      *prometheus.CounterVec
	AnnotationsPublished *prometheus.CounterVec
	AnnotationsDropped   *prometheus.CounterVec
	ClassifierDuration   *prometheus.HistogramVec
	PublishAttempts      *prometheus.CounterVec
	SidechannelPublished *prometheus.CounterVec
	SourcesConnected     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaybridge",
				Subsystem: "ingest",
				Name:      "events_received_total",
				Help:      "Total events delivered by source relays",
			},
			[]string{"relay"},
		),

		EventsAdmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "relaybridge",
				Subsystem: "gate",
				Name:      "events_admitted_total",
				Help:      "Total events admitted past the dedup/freshness gate",
			},
		),

		EventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaybridge",
				Subsystem: "gate",
				Name:      "events_rejected_total",
				Help:      "Total events rejected by the gate, by reason",
			},
			[]string{"reason"},
		),

		NotesClassified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaybridge",
				Subsystem: "classify",
				Name:      "stages_total",
				Help:      "Classification stage runs, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		AnnotationsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaybridge",
				Subsystem: "classify",
				Name:      "annotations_published_total",
				Help:      "Annotation events delivered to target relays, by kind",
			},
			[]string{"kind"},
		),

		AnnotationsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaybridge",
				Subsystem: "classify",
				Name:      "annotations_dropped_total",
				Help:      "Annotation events dropped before delivery, by kind and reason",
			},
			[]string{"kind", "reason"},
		),

		ClassifierDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "relaybridge",
				Subsystem: "classify",
				Name:      "duration_seconds",
				Help:      "External classifier call duration, by kind",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"kind"},
		),

		PublishAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaybridge",
				Subsystem: "publish",
				Name:      "attempts_total",
				Help:      "Target relay publish attempts, by outcome",
			},
			[]string{"outcome"},
		),

		SidechannelPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "relaybridge",
				Subsystem: "sidechannel",
				Name:      "published_total",
				Help:      "Messages mirrored to side-channel brokers, by subject",
			},
			[]string{"subject"},
		),

		SourcesConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "relaybridge",
				Subsystem: "ingest",
				Name:      "sources_connected",
				Help:      "Number of source relays currently subscribed",
			},
		),
	}
}
