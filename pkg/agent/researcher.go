package agent

import (
	"context"
	"fmt"
	"strings"

	"prp/pkg/agent/llm"
	"prp/pkg/backlog"
	"prp/pkg/logx"
	"prp/pkg/runerrors"
	"prp/pkg/utils"
)

const researchSystemPrompt = `You are a senior engineer preparing an implementation contract for a work item.
Given the work item's title, description, and dependencies, produce a concise
contract: the inputs, outputs, constraints, and acceptance criteria an
implementer needs. Respond with the contract only.`

// maxPromptTokens bounds the research prompt; oversized descriptions are
// truncated rather than rejected.
const maxPromptTokens = 16000

// ResearchAgent generates implementation contracts for subtasks via an LLM.
type ResearchAgent struct {
	client  llm.LLMClient
	logger  *logx.Logger
	counter *utils.TokenCounter
}

// NewResearchAgent creates a research agent on top of the given client.
func NewResearchAgent(client llm.LLMClient) *ResearchAgent {
	counter, err := utils.NewTokenCounter()
	if err != nil {
		counter = nil // falls back to character estimation
	}
	return &ResearchAgent{
		client:  client,
		logger:  logx.NewLogger("researcher"),
		counter: counter,
	}
}

// GenerateContract implements research.Researcher.
func (a *ResearchAgent) GenerateContract(ctx context.Context, s *backlog.Subtask) (string, error) {
	prompt := a.buildPrompt(s)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(researchSystemPrompt),
		llm.NewUserMessage(prompt),
	})

	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		return "", runerrors.NewResearch(s.ID, err, "completion failed")
	}
	contract := strings.TrimSpace(resp.Content)
	if contract == "" {
		return "", runerrors.NewResearch(s.ID, nil, "model returned an empty contract")
	}

	a.logger.Debug("Generated contract for %s (%d prompt tokens, %d completion tokens)",
		s.ID, resp.PromptTokens, resp.CompletionTokens)
	return contract, nil
}

func (a *ResearchAgent) buildPrompt(s *backlog.Subtask) string {
	description := s.Description
	if a.counter != nil && !a.counter.ValidateTokenLimit(description, maxPromptTokens) {
		a.logger.Warn("Description for %s exceeds prompt budget, truncating", s.ID)
		// Rough cut by characters; the budget is approximate anyway.
		if cut := maxPromptTokens * 4; len(description) > cut {
			description = description[:cut]
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Work item %s: %s\n\n", s.ID, s.Title)
	if description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n\n", description)
	}
	if len(s.Dependencies) > 0 {
		fmt.Fprintf(&b, "Depends on: %s\n", strings.Join(s.Dependencies, ", "))
	}
	fmt.Fprintf(&b, "Story points: %d\n", s.StoryPoints)
	return b.String()
}
