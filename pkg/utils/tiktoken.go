package utils

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for prompt budgeting. All supported
// models approximate well with the GPT-4 encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a new token counter.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		// Character-based estimation (4 chars per token).
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// ValidateTokenLimit reports whether text fits within the token limit.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// CountTokensSimple counts tokens without requiring a TokenCounter instance.
func CountTokensSimple(text string) int {
	counter, err := NewTokenCounter()
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}
