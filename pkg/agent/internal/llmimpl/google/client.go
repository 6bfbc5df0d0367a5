// Package google provides the Google Gemini implementation of llm.LLMClient.
package google

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"prp/pkg/agent/llm"
)

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGeminiClientWithModel creates a new Gemini client with a specific model.
// Client creation requires a context, so it is deferred to the first Complete.
func NewGeminiClientWithModel(apiKey, model string) llm.LLMClient {
	return &GeminiClient{
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		g.client = client
	}

	systemPrompt, userPrompt, err := llm.SplitSystem(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("invalid prompt: %w", err)
	}

	//nolint:gosec // MaxTokens validated at higher layer, overflow acceptable
	maxTokens := int32(in.MaxTokens)
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userPrompt), config)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("gemini API call failed: %w", err)
	}
	if result == nil || result.Text() == "" {
		return llm.CompletionResponse{}, fmt.Errorf("empty response from Gemini API")
	}

	resp := llm.CompletionResponse{Content: result.Text()}
	if len(result.Candidates) > 0 {
		resp.StopReason = string(result.Candidates[0].FinishReason)
	}
	if result.UsageMetadata != nil {
		resp.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		resp.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}
