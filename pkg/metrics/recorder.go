// Package metrics provides metrics recording and querying for pipeline runs.
package metrics

import "time"

// Recorder defines the interface for recording pipeline metrics.
type Recorder interface {
	// IncCacheHit records a research cache hit.
	IncCacheHit()

	// IncCacheMiss records a research cache miss.
	IncCacheMiss()

	// IncCacheEviction records eviction of a stale or invalidated cache entry.
	IncCacheEviction()

	// ObserveResearch records the duration of one research attempt.
	ObserveResearch(success bool, duration time.Duration)

	// IncResearchRetry records a retried research attempt for a subtask.
	IncResearchRetry(subtaskID string)

	// IncSubtaskOutcome records a subtask reaching a terminal outcome.
	IncSubtaskOutcome(outcome string)

	// ObserveLLMRequest records metrics for a completed LLM request.
	ObserveLLMRequest(
		model, role string,
		promptTokens, completionTokens int,
		success bool,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// IncCacheHit does nothing in the no-op recorder.
func (n *NoopRecorder) IncCacheHit() {}

// IncCacheMiss does nothing in the no-op recorder.
func (n *NoopRecorder) IncCacheMiss() {}

// IncCacheEviction does nothing in the no-op recorder.
func (n *NoopRecorder) IncCacheEviction() {}

// ObserveResearch does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveResearch(_ bool, _ time.Duration) {}

// IncResearchRetry does nothing in the no-op recorder.
func (n *NoopRecorder) IncResearchRetry(_ string) {}

// IncSubtaskOutcome does nothing in the no-op recorder.
func (n *NoopRecorder) IncSubtaskOutcome(_ string) {}

// ObserveLLMRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveLLMRequest(_, _ string, _, _ int, _ bool, _ time.Duration) {}
