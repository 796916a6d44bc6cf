package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the badge service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CredentialsIssued *prometheus.CounterVec
	CredentialsSigned prometheus.Counter
	Verifications     *prometheus.CounterVec
	VerifyLatency     prometheus.Histogram

	// Key manager
	IssuerKeysCreated prometheus.Counter
	KeyCacheLookups   *prometheus.CounterVec

	// Status lists
	StatusListsCreated prometheus.Counter
	Revocations        *prometheus.CounterVec
	StatusWriteRetries prometheus.Counter
	StatusIndexProbes  prometheus.Histogram
	StatusLockWait     prometheus.Histogram
	StatusCacheLookups *prometheus.CounterVec
	StatusCacheCircuit prometheus.Gauge

	// Badge codec
	BadgeOperations *prometheus.CounterVec

	// HTTP
	EndpointLatency *prometheus.HistogramVec
}

// New creates and registers all collectors with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "badges_credentials_issued_total",
			Help: "Total number of credentials issued, labeled by generation",
		}, []string{"generation"}),
		CredentialsSigned: f.NewCounter(prometheus.CounterOpts{
			Name: "badges_credentials_signed_total",
			Help: "Total number of credentials signed, status list credentials included",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "badges_verifications_total",
			Help: "Total number of verifications, labeled by generation and outcome",
		}, []string{"generation", "outcome"}),
		VerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "badges_verify_latency_seconds",
			Help:    "Latency of a full verification pipeline run in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		IssuerKeysCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "badges_issuer_keys_created_total",
			Help: "Total number of issuer signing keys created or rotated in",
		}),
		KeyCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "badges_key_cache_lookups_total",
			Help: "Verification method cache lookups, labeled by result (hit|miss)",
		}, []string{"result"}),
		StatusListsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "badges_status_lists_created_total",
			Help: "Total number of status lists created",
		}),
		Revocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "badges_status_changes_total",
			Help: "Status bit changes, labeled by action (revoke|reinstate|noop)",
		}, []string{"action"}),
		StatusWriteRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "badges_status_write_retries_total",
			Help: "Status list writes retried after a version conflict",
		}),
		StatusIndexProbes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "badges_status_index_probes",
			Help:    "Slots probed before a free status index was found",
			Buckets: []float64{1, 2, 4, 8, 16, 64, 256, 1024},
		}),
		StatusLockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "badges_status_lock_wait_seconds",
			Help:    "Time spent waiting for a status list shard lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		StatusCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "badges_status_cache_lookups_total",
			Help: "Status list cache lookups, labeled by result (hit|miss|error)",
		}, []string{"result"}),
		StatusCacheCircuit: f.NewGauge(prometheus.GaugeOpts{
			Name: "badges_status_cache_circuit_open",
			Help: "1 while the status list cache is bypassed after repeated failures",
		}),
		BadgeOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "badges_codec_operations_total",
			Help: "Bake and extract operations, labeled by operation, image kind and result",
		}, []string{"operation", "kind", "result"}),
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "badges_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) IncrementCredentialsIssued(generation string) {
	if m == nil {
		return
	}
	m.CredentialsIssued.WithLabelValues(generation).Inc()
}

func (m *Metrics) IncrementCredentialsSigned() {
	if m == nil {
		return
	}
	m.CredentialsSigned.Inc()
}

// ObserveVerification records one pipeline run.
func (m *Metrics) ObserveVerification(generation string, valid bool, durationSeconds float64) {
	if m == nil {
		return
	}
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	m.Verifications.WithLabelValues(generation, outcome).Inc()
	m.VerifyLatency.Observe(durationSeconds)
}

func (m *Metrics) IncrementIssuerKeysCreated() {
	if m == nil {
		return
	}
	m.IssuerKeysCreated.Inc()
}

func (m *Metrics) IncrementKeyCacheLookup(hit bool) {
	if m == nil {
		return
	}
	m.KeyCacheLookups.WithLabelValues(hitLabel(hit)).Inc()
}

func (m *Metrics) IncrementStatusListsCreated() {
	if m == nil {
		return
	}
	m.StatusListsCreated.Inc()
}

// IncrementStatusChange records a revoke, reinstate or no-op.
func (m *Metrics) IncrementStatusChange(action string) {
	if m == nil {
		return
	}
	m.Revocations.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementStatusWriteRetries() {
	if m == nil {
		return
	}
	m.StatusWriteRetries.Inc()
}

func (m *Metrics) ObserveStatusIndexProbes(probes int) {
	if m == nil {
		return
	}
	m.StatusIndexProbes.Observe(float64(probes))
}

func (m *Metrics) ObserveStatusLockWait(durationSeconds float64) {
	if m == nil {
		return
	}
	m.StatusLockWait.Observe(durationSeconds)
}

func (m *Metrics) SetStatusCacheCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.StatusCacheCircuit.Set(1)
		return
	}
	m.StatusCacheCircuit.Set(0)
}

// IncrementStatusCacheLookup records a cache outcome: hit, miss or error.
func (m *Metrics) IncrementStatusCacheLookup(result string) {
	if m == nil {
		return
	}
	m.StatusCacheLookups.WithLabelValues(result).Inc()
}

// IncrementBadgeOperation records a bake or extract.
func (m *Metrics) IncrementBadgeOperation(operation, kind, result string) {
	if m == nil {
		return
	}
	m.BadgeOperations.WithLabelValues(operation, kind, result).Inc()
}

// ObserveEndpointLatency records the latency for a given endpoint.
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
