package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RecordsCreated        prometheus.Counter
	Transitions           *prometheus.CounterVec
	Withdrawals           prometheus.Counter
	DeletionsCompleted    prometheus.Counter
	ComplianceEvaluations *prometheus.CounterVec
	EvaluationDuration    prometheus.Histogram
	KeyCacheHits          prometheus.Counter
	KeyCacheMisses        prometheus.Counter
	AuditFanOutFailures   prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on a caller-supplied registry; tests use a fresh one to
// avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_consent_records_created_total",
			Help: "Total number of consent records created",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_consent_transitions_total",
			Help: "Total number of verification status transitions",
		}, []string{"target"}),
		Withdrawals: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_withdrawals_total",
			Help: "Total number of accepted withdrawal requests",
		}),
		DeletionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_deletions_completed_total",
			Help: "Total number of completed data deletions",
		}),
		ComplianceEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_compliance_evaluations_total",
			Help: "Total number of compliance evaluations by standard and result",
		}, []string{"standard", "result"}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "assent_compliance_evaluation_duration_ms",
			Help:    "Latency of compliance evaluations in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}),
		KeyCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_key_cache_hits_total",
			Help: "Total number of key resolutions served from cache",
		}),
		KeyCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_key_cache_misses_total",
			Help: "Total number of key resolutions that missed the cache",
		}),
		AuditFanOutFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_audit_fanout_failures_total",
			Help: "Total number of audit entries that failed Kafka fan-out",
		}),
	}
}
