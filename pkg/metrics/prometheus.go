package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	cacheEvents      *prometheus.CounterVec
	researchDuration *prometheus.HistogramVec
	researchRetries  *prometheus.CounterVec
	subtaskOutcomes  *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	llmDuration      *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder registered against reg. Passing
// nil uses the default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		cacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prp_research_cache_events_total",
				Help: "Total research cache events by type (hit, miss, eviction)",
			},
			[]string{"event"},
		),
		researchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prp_research_duration_seconds",
				Help:    "Duration of research contract generation in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		researchRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prp_research_retries_total",
				Help: "Total research attempts retried after transient failures",
			},
			[]string{"subtask_id"},
		),
		subtaskOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prp_subtask_outcomes_total",
				Help: "Total subtask executions by terminal outcome",
			},
			[]string{"outcome"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prp_llm_requests_total",
				Help: "Total LLM requests by model, role, and status",
			},
			[]string{"model", "role", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prp_llm_tokens_total",
				Help: "Total tokens used in LLM requests",
			},
			[]string{"model", "role", "type"},
		),
		llmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prp_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "role"},
		),
	}
}

// IncCacheHit records a research cache hit.
func (r *PrometheusRecorder) IncCacheHit() {
	r.cacheEvents.WithLabelValues("hit").Inc()
}

// IncCacheMiss records a research cache miss.
func (r *PrometheusRecorder) IncCacheMiss() {
	r.cacheEvents.WithLabelValues("miss").Inc()
}

// IncCacheEviction records eviction of a stale or invalidated cache entry.
func (r *PrometheusRecorder) IncCacheEviction() {
	r.cacheEvents.WithLabelValues("eviction").Inc()
}

// ObserveResearch records the duration of one research attempt.
func (r *PrometheusRecorder) ObserveResearch(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.researchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncResearchRetry records a retried research attempt for a subtask.
func (r *PrometheusRecorder) IncResearchRetry(subtaskID string) {
	r.researchRetries.WithLabelValues(subtaskID).Inc()
}

// IncSubtaskOutcome records a subtask reaching a terminal outcome.
func (r *PrometheusRecorder) IncSubtaskOutcome(outcome string) {
	r.subtaskOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveLLMRequest records metrics for a completed LLM request.
func (r *PrometheusRecorder) ObserveLLMRequest(
	model, role string,
	promptTokens, completionTokens int,
	success bool,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	r.llmRequests.WithLabelValues(model, role, status).Inc()

	if success {
		r.llmTokens.WithLabelValues(model, role, "prompt").Add(float64(promptTokens))
		r.llmTokens.WithLabelValues(model, role, "completion").Add(float64(completionTokens))
	}

	r.llmDuration.WithLabelValues(model, role).Observe(duration.Seconds())
}
