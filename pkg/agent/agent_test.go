package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prp/pkg/agent/llm"
	"prp/pkg/backlog"
	"prp/pkg/config"
	"prp/pkg/runerrors"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetryableClientRecoversFromTransientError(t *testing.T) {
	mock := NewMockLLMClient(
		[]llm.CompletionResponse{{Content: "ok"}},
		[]error{errors.New("connection reset"), nil},
	)
	client := NewRetryableClient(mock, fastRetryConfig(3))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestRetryableClientGivesUpAfterBudget(t *testing.T) {
	mock := NewMockLLMClient(nil, []error{
		errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
	})
	client := NewRetryableClient(mock, fastRetryConfig(2))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetryableClientDoesNotRetryConfigurationError(t *testing.T) {
	mock := NewMockLLMClient(
		[]llm.CompletionResponse{{Content: "never reached"}},
		[]error{runerrors.NewConfiguration("bad API key")},
	)
	client := NewRetryableClient(mock, fastRetryConfig(3))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Equal(t, runerrors.KindConfiguration, runerrors.KindOf(err))
}

func researchSubtask() *backlog.Subtask {
	return &backlog.Subtask{
		ID: "P1.M1.T1.S1", Title: "Build parser", Description: "Parse documents",
		Status: backlog.StatusPlanned, StoryPoints: 2,
		Dependencies: []string{"P1.M1.T1.S0"},
	}
}

func TestResearchAgentGeneratesContract(t *testing.T) {
	mock := NewMockLLMClient([]llm.CompletionResponse{
		{Content: "  Contract: parse markdown into a tree.  ", PromptTokens: 50, CompletionTokens: 20},
	}, nil)
	agent := NewResearchAgent(mock)

	contract, err := agent.GenerateContract(context.Background(), researchSubtask())
	require.NoError(t, err)
	assert.Equal(t, "Contract: parse markdown into a tree.", contract)
}

func TestResearchAgentEmptyContractIsError(t *testing.T) {
	mock := NewMockLLMClient([]llm.CompletionResponse{{Content: "   "}}, nil)
	agent := NewResearchAgent(mock)

	_, err := agent.GenerateContract(context.Background(), researchSubtask())
	require.Error(t, err)
	assert.Equal(t, runerrors.KindResearch, runerrors.KindOf(err))
	assert.Equal(t, "P1.M1.T1.S1", runerrors.SubtaskOf(err))
}

func TestExecutionAgentReturnsResult(t *testing.T) {
	mock := NewMockLLMClient([]llm.CompletionResponse{{Content: "done: parser built"}}, nil)
	agent := NewExecutionAgent(mock)

	result, err := agent.Execute(context.Background(), researchSubtask(), "the contract")
	require.NoError(t, err)
	assert.Equal(t, "done: parser built", result)
}

func TestExecutionAgentBlockedIsExecutionError(t *testing.T) {
	mock := NewMockLLMClient([]llm.CompletionResponse{
		{Content: "BLOCKED: contract requires credentials that are unavailable"},
	}, nil)
	agent := NewExecutionAgent(mock)

	_, err := agent.Execute(context.Background(), researchSubtask(), "the contract")
	require.Error(t, err)
	assert.Equal(t, runerrors.KindExecution, runerrors.KindOf(err))
	assert.Contains(t, err.Error(), "credentials")
}

func TestClientFactoryMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	factory := NewClientFactory(config.DefaultConfig(), nil, nil)
	_, err := factory.ClientForModel("claude-sonnet-4-20250514", "researcher")
	require.Error(t, err)
	assert.Equal(t, runerrors.KindConfiguration, runerrors.KindOf(err))
}

func TestClientFactorySecretsOverrideEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	secrets := map[string]string{"ANTHROPIC_API_KEY": "secret-key"}
	factory := NewClientFactory(config.DefaultConfig(), secrets, nil)
	client, err := factory.ClientForModel("claude-sonnet-4-20250514", "researcher")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", client.GetModelName())
}

func TestClientFactoryOllamaNeedsNoKey(t *testing.T) {
	factory := NewClientFactory(config.DefaultConfig(), nil, nil)
	client, err := factory.ClientForModel("llama3.1:8b", "executor")
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:8b", client.GetModelName())
}
