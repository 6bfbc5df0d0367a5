package agent

import (
	"context"
	"fmt"

	"prp/pkg/agent/llm"
)

// MockLLMClient provides a controllable implementation of llm.LLMClient for testing.
type MockLLMClient struct {
	responses     []llm.CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
}

// NewMockLLMClient creates a new mock client with predefined responses.
func NewMockLLMClient(responses []llm.CompletionResponse, errors []error) *MockLLMClient {
	return &MockLLMClient{
		responses: responses,
		errors:    errors,
	}
}

// Complete returns the next predefined response or error.
func (m *MockLLMClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return llm.CompletionResponse{}, err
	}

	if m.responseIndex >= len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// GetModelName returns a static mock model name.
func (m *MockLLMClient) GetModelName() string {
	return "mock-model"
}
