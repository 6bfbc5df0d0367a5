package agent

import (
	"context"
	"time"

	"prp/pkg/agent/llm"
	"prp/pkg/metrics"
)

// MetricsClient wraps an LLMClient and records request metrics.
type MetricsClient struct {
	client   llm.LLMClient
	recorder metrics.Recorder
	role     string
}

// NewMetricsClient creates a metrics-recording client wrapper.
func NewMetricsClient(client llm.LLMClient, recorder metrics.Recorder, role string) *MetricsClient {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &MetricsClient{client: client, recorder: recorder, role: role}
}

// Complete implements llm.LLMClient, recording outcome and token usage.
func (m *MetricsClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := m.client.Complete(ctx, req)
	m.recorder.ObserveLLMRequest(
		m.client.GetModelName(), m.role,
		resp.PromptTokens, resp.CompletionTokens,
		err == nil,
		time.Since(start),
	)
	return resp, err
}

// GetModelName returns the wrapped client's model name.
func (m *MetricsClient) GetModelName() string {
	return m.client.GetModelName()
}
