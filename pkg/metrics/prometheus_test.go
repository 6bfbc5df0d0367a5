package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCacheEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncCacheHit()
	r.IncCacheHit()
	r.IncCacheMiss()
	r.IncCacheEviction()

	assert.Equal(t, float64(2), testutil.ToFloat64(r.cacheEvents.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.cacheEvents.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.cacheEvents.WithLabelValues("eviction")))
}

func TestRecorderSubtaskOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncSubtaskOutcome("complete")
	r.IncSubtaskOutcome("complete")
	r.IncSubtaskOutcome("failed")

	assert.Equal(t, float64(2), testutil.ToFloat64(r.subtaskOutcomes.WithLabelValues("complete")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.subtaskOutcomes.WithLabelValues("failed")))
}

func TestRecorderLLMRequestTokensOnlyOnSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveLLMRequest("claude-sonnet-4", "researcher", 100, 50, true, time.Second)
	r.ObserveLLMRequest("claude-sonnet-4", "researcher", 200, 80, false, time.Second)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(r.llmRequests.WithLabelValues("claude-sonnet-4", "researcher", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(r.llmRequests.WithLabelValues("claude-sonnet-4", "researcher", "error")))

	// Failed requests contribute no token counts.
	assert.Equal(t, float64(100),
		testutil.ToFloat64(r.llmTokens.WithLabelValues("claude-sonnet-4", "researcher", "prompt")))
	assert.Equal(t, float64(50),
		testutil.ToFloat64(r.llmTokens.WithLabelValues("claude-sonnet-4", "researcher", "completion")))
}

func TestRecorderSeparateRegistries(t *testing.T) {
	// Two recorders on independent registries must not collide.
	a := NewPrometheusRecorder(prometheus.NewRegistry())
	b := NewPrometheusRecorder(prometheus.NewRegistry())

	a.IncCacheHit()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.cacheEvents.WithLabelValues("hit")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.cacheEvents.WithLabelValues("hit")))
}
