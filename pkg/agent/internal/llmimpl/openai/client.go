// Package openai provides the OpenAI implementation of llm.LLMClient using
// the official OpenAI Go package.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"prp/pkg/agent/llm"
)

// Client wraps the official OpenAI Go client to implement llm.LLMClient.
type Client struct {
	client openai.Client
	model  string
}

// NewClientWithModel creates a new OpenAI client for the given model.
func NewClientWithModel(apiKey, model string) llm.LLMClient {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(in.MaxTokens)),
		Temperature:         openai.Float(float64(in.Temperature)),
	})
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("openai API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("empty response from OpenAI API")
	}

	choice := resp.Choices[0]
	return llm.CompletionResponse{
		Content:          choice.Message.Content,
		StopReason:       string(choice.FinishReason),
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}
