package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"prp/pkg/agent/llm"
	"prp/pkg/runerrors"
)

// RetryConfig defines configuration for retry behavior.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Multiplier for exponential backoff
	Jitter        bool          // Add random jitter to prevent thundering herd
}

// DefaultRetryConfig provides reasonable defaults for retry behavior.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// RetryableClient wraps an LLMClient with retry logic.
type RetryableClient struct {
	client llm.LLMClient
	config RetryConfig
}

// NewRetryableClient creates a new retryable LLM client.
func NewRetryableClient(client llm.LLMClient, config RetryConfig) *RetryableClient {
	return &RetryableClient{
		client: client,
		config: config,
	}
}

// Complete implements llm.LLMClient with retry logic.
func (r *RetryableClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			select {
			case <-ctx.Done():
				return llm.CompletionResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := r.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !shouldRetry(err) {
			break
		}
		if attempt == r.config.MaxRetries {
			break
		}
	}

	return llm.CompletionResponse{}, fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// GetModelName returns the wrapped client's model name.
func (r *RetryableClient) GetModelName() string {
	return r.client.GetModelName()
}

// calculateDelay computes the delay for the given retry attempt.
func (r *RetryableClient) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1)))

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter {
		jitterFactor := float64(time.Now().UnixNano()%2*2 - 1) // -1 or 1
		jitter := time.Duration(float64(delay) * 0.1 * jitterFactor)
		delay += jitter
		if delay < 0 {
			delay = r.config.InitialDelay
		}
	}

	return delay
}

// shouldRetry determines if an error should be retried. Configuration
// faults never heal by retrying; transient network and server errors do.
func shouldRetry(err error) bool {
	if runerrors.KindOf(err) == runerrors.KindConfiguration {
		return false
	}

	errStr := err.Error()

	// Retry on network/timeout errors
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return true
	}

	// Retry on rate limiting
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "429") {
		return true
	}

	// Retry on server errors (5xx)
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}

	// Retry on empty responses from LLM
	if strings.Contains(errStr, "empty response") {
		return true
	}

	return false
}
