package observability

import (
	"time"

	"github.com/graminate/finance-bfa-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	normalization   *prometheus.CounterVec
	reportsTotal    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graminate_bfa_request_duration_seconds",
				Help:    "Duration of pipeline operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graminate_bfa_external_errors_total",
				Help: "Total failed calls to the backend, by source.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graminate_bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graminate_bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		normalization: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graminate_bfa_normalization_events_total",
				Help: "Records skipped and fields coerced while normalizing.",
			},
			[]string{"kind"},
		),
		reportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graminate_bfa_reports_total",
				Help: "Total ledgers built, by completeness.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordNormalization adds the forgiven-data counts of one ledger build.
func (m *Metrics) RecordNormalization(r domain.NormalizationReport) {
	m.normalization.WithLabelValues("skipped").Add(float64(r.SkippedRecords))
	m.normalization.WithLabelValues("coerced").Add(float64(r.CoercedFields))
	m.normalization.WithLabelValues("clamped").Add(float64(r.ClampedValues))
}

// IncrReport counts a built ledger as "complete" or "partial".
func (m *Metrics) IncrReport(status string) {
	m.reportsTotal.WithLabelValues(status).Inc()
}

// GetPipelineSnapshot returns a snapshot of pipeline counters suitable for
// the GET /v1/metrics/pipeline endpoint.
func (m *Metrics) GetPipelineSnapshot() *domain.PipelineMetrics {
	complete := getCounterValue(m.reportsTotal, "complete")
	partial := getCounterValue(m.reportsTotal, "partial")
	hits := getCounterValue(m.cacheHits, "ledger")
	misses := getCounterValue(m.cacheMisses, "ledger")

	total := complete + partial
	partialRate := float64(0)
	if total > 0 {
		partialRate = partial / total
	}
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.PipelineMetrics{
		TotalReports:   int64(total),
		PartialReports: int64(partial),
		PartialRate:    partialRate,
		SalesErrors:    int64(getCounterValue(m.externalErrors, "sales")),
		ExpenseErrors:  int64(getCounterValue(m.externalErrors, "expenses")),
		CoercedFields:  int64(getCounterValue(m.normalization, "coerced")),
		SkippedRecords: int64(getCounterValue(m.normalization, "skipped")),
		CacheHitRate:   hitRate,
		Period:         "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
