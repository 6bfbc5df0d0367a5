// Package llm provides interfaces and types for Large Language Model client implementations.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens is the default completion budget for contract
	// generation and execution prompts.
	DefaultMaxTokens = 4096

	// TemperatureDefault is the default temperature for research and
	// judgment tasks. Allows some exploration while staying focused.
	TemperatureDefault = 0.3
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content          string
	StopReason       string
	PromptTokens     int
	CompletionTokens int
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // Established name across the codebase
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// LLMConfig represents configuration for an LLM client.
type LLMConfig struct { //nolint:revive // Established name across the codebase
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// Validate validates the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}

// SplitSystem separates system messages from the conversation, joining the
// system parts and merging the rest into a single user turn. Providers that
// take a dedicated system parameter use this before converting messages.
func SplitSystem(messages []CompletionMessage) (systemPrompt, userPrompt string, err error) {
	if len(messages) == 0 {
		return "", "", fmt.Errorf("message list cannot be empty")
	}

	var systemParts, userParts []string
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)
		default:
			userParts = append(userParts, msg.Content)
		}
	}
	if len(userParts) == 0 {
		return "", "", fmt.Errorf("must have at least one non-system message")
	}
	return strings.Join(systemParts, "\n\n"), strings.Join(userParts, "\n\n"), nil
}
