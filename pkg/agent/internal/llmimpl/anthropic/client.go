// Package anthropic provides the Anthropic Claude implementation of llm.LLMClient.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"prp/pkg/agent/llm"
	"prp/pkg/runerrors"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClientWithModel creates a new Claude client for the given model.
func NewClaudeClientWithModel(apiKey, model string) llm.LLMClient {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeClient{
		client: client,
		model:  anthropic.Model(model),
	}
}

// Complete implements the llm.LLMClient interface.
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, userPrompt, err := llm.SplitSystem(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, runerrors.NewConfiguration(fmt.Sprintf("invalid prompt: %v", err))
	}

	params := anthropic.MessageNewParams{
		Model: c.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("anthropic API call failed: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("empty response from Anthropic API")
	}

	var text string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	return llm.CompletionResponse{
		Content:          text,
		StopReason:       string(resp.StopReason),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}
