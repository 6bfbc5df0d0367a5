// Package ollama provides the Ollama implementation of llm.LLMClient.
// Ollama is a local LLM runtime that allows running open-source models.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"prp/pkg/agent/llm"
)

// Client wraps the Ollama API client to implement llm.LLMClient.
type Client struct {
	client *api.Client
	model  string
}

// NewClientWithModel creates a new Ollama client with a specific model.
// hostURL should be the Ollama server URL (e.g., "http://localhost:11434").
func NewClientWithModel(hostURL, model string) llm.LLMClient {
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		parsedURL, _ = url.Parse("http://localhost:11434")
	}

	return &Client{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		messages = append(messages, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("ollama API call failed: %w", err)
	}
	if response.Message.Content == "" {
		return llm.CompletionResponse{}, fmt.Errorf("empty response from Ollama API")
	}

	return llm.CompletionResponse{
		Content:          response.Message.Content,
		StopReason:       response.DoneReason,
		PromptTokens:     response.Metrics.PromptEvalCount,
		CompletionTokens: response.Metrics.EvalCount,
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}
