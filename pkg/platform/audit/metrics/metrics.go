package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Queue metrics
	QueueDepth     prometheus.Gauge
	EventsDropped  prometheus.Counter
	EventsEnqueued prometheus.Counter

	// Processing metrics
	PersistDuration prometheus.Histogram
	PersistFailures prometheus.Counter
	EventsProcessed prometheus.Counter
}

// New registers the audit collectors with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the audit collectors with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "badges_audit_queue_depth",
			Help: "Current number of events in the audit publisher queue",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "badges_audit_events_dropped_total",
			Help: "Total number of audit events dropped due to full buffer",
		}),
		EventsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "badges_audit_events_enqueued_total",
			Help: "Total number of audit events successfully enqueued",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "badges_audit_persist_duration_seconds",
			Help:    "Time taken to persist an audit event to the store",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "badges_audit_persist_failures_total",
			Help: "Total number of audit event persistence failures",
		}),
		EventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "badges_audit_events_processed_total",
			Help: "Total number of audit events persisted",
		}),
	}
}

func (m *Metrics) IncQueueDepth() {
	if m != nil {
		m.QueueDepth.Inc()
	}
}

func (m *Metrics) DecQueueDepth() {
	if m != nil {
		m.QueueDepth.Dec()
	}
}

func (m *Metrics) IncEventsDropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}

func (m *Metrics) IncEventsEnqueued() {
	if m != nil {
		m.EventsEnqueued.Inc()
	}
}

// ObservePersist records one store write and its outcome.
func (m *Metrics) ObservePersist(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(durationSeconds)
	if err != nil {
		m.PersistFailures.Inc()
		return
	}
	m.EventsProcessed.Inc()
}
