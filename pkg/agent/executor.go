package agent

import (
	"context"
	"fmt"
	"strings"

	"prp/pkg/agent/llm"
	"prp/pkg/backlog"
	"prp/pkg/logx"
	"prp/pkg/runerrors"
)

const executorSystemPrompt = `You are a senior engineer executing a work item against its implementation
contract. Produce the deliverable the contract asks for. If the contract
cannot be satisfied, start your reply with BLOCKED: followed by the reason.`

// ExecutionAgent performs subtask execution via an LLM, guided by the
// subtask's research contract.
type ExecutionAgent struct {
	client llm.LLMClient
	logger *logx.Logger
}

// NewExecutionAgent creates an execution agent on top of the given client.
func NewExecutionAgent(client llm.LLMClient) *ExecutionAgent {
	return &ExecutionAgent{
		client: client,
		logger: logx.NewLogger("executor"),
	}
}

// Execute carries out one subtask and returns the produced result.
func (a *ExecutionAgent) Execute(ctx context.Context, s *backlog.Subtask, contract string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Work item %s: %s\n\n", s.ID, s.Title)
	if s.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n\n", s.Description)
	}
	fmt.Fprintf(&b, "Implementation contract:\n%s\n", contract)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(executorSystemPrompt),
		llm.NewUserMessage(b.String()),
	})

	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		return "", runerrors.NewExecution(s.ID, err, "completion failed")
	}

	result := strings.TrimSpace(resp.Content)
	if result == "" {
		return "", runerrors.NewExecution(s.ID, nil, "model returned an empty result")
	}
	if reason, blocked := strings.CutPrefix(result, "BLOCKED:"); blocked {
		return "", runerrors.NewExecution(s.ID, nil, strings.TrimSpace(reason))
	}

	a.logger.Debug("Executed %s (%d completion tokens)", s.ID, resp.CompletionTokens)
	return result, nil
}
