package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
)

// Metrics holds all Prometheus metrics of the backend.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	tokensUsed         *prometheus.CounterVec
	modelRequests      *prometheus.CounterVec
	snapshotsDelivered prometheus.Counter
	invalidRecords     *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry lets tests call NewMetrics
// repeatedly without "duplicate collector" panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finanzen_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzen_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzen_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzen_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzen_model_tokens_total",
				Help: "Total language-model tokens consumed.",
			},
			[]string{"type"},
		),
		modelRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzen_model_requests_total",
				Help: "Total language-model requests by operation and outcome.",
			},
			[]string{"operation", "status"},
		),
		snapshotsDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "finanzen_snapshots_delivered_total",
				Help: "Total full snapshots applied to sessions.",
			},
		),
		invalidRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finanzen_invalid_records_total",
				Help: "Stored records dropped because they failed validation.",
			},
			[]string{"kind"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "finanzen_active_sessions",
				Help: "Open per-user sessions.",
			},
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

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrModelRequest counts one model call; status is "success" or "error".
func (m *Metrics) IncrModelRequest(operation, status string) {
	m.modelRequests.WithLabelValues(operation, status).Inc()
}

// IncrSnapshotDelivered counts a snapshot applied to a session.
func (m *Metrics) IncrSnapshotDelivered() {
	m.snapshotsDelivered.Inc()
}

// IncrInvalidRecords counts records dropped on decode.
func (m *Metrics) IncrInvalidRecords(kind string, n int) {
	m.invalidRecords.WithLabelValues(kind).Add(float64(n))
}

// SetActiveSessions sets the open-session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// GetModelSnapshot returns the language-model usage suitable for the
// GET /v1/metrics/model endpoint.
func (m *Metrics) GetModelSnapshot() *domain.ModelMetrics {
	promptTokens := getCounterValue(m.tokensUsed, "prompt")
	completionTokens := getCounterValue(m.tokensUsed, "completion")

	var total, failed float64
	for _, op := range []string{"extract", "insights", "shopping"} {
		total += getCounterValue(m.modelRequests, op, "success") + getCounterValue(m.modelRequests, op, "error")
		failed += getCounterValue(m.modelRequests, op, "error")
	}
	cacheHits := getCounterValue(m.cacheHits, "session")
	cacheMisses := getCounterValue(m.cacheMisses, "session")

	avgTokens := float64(0)
	errorRate := float64(0)
	cacheHitRate := float64(0)
	if total > 0 {
		avgTokens = (promptTokens + completionTokens) / total
		errorRate = failed / total
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	delivered := &dto.Metric{}
	_ = m.snapshotsDelivered.Write(delivered)

	return &domain.ModelMetrics{
		TotalRequests:       int64(total),
		FailedRequests:      int64(failed),
		ErrorRate:           errorRate,
		PromptTokens:        int64(promptTokens),
		CompletionTokens:    int64(completionTokens),
		AvgTokensPerRequest: avgTokens,
		SessionCacheHitRate: cacheHitRate,
		SnapshotsDelivered:  int64(delivered.GetCounter().GetValue()),
	}
}

// getCounterValue extracts the current value of a CounterVec child.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
