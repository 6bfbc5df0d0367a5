// Package agent provides LLM clients for the research and execution roles,
// with retry and metrics wrapping.
package agent

import (
	"os"

	"prp/pkg/agent/internal/llmimpl/anthropic"
	"prp/pkg/agent/internal/llmimpl/google"
	"prp/pkg/agent/internal/llmimpl/ollama"
	"prp/pkg/agent/internal/llmimpl/openai"
	"prp/pkg/agent/llm"
	"prp/pkg/config"
	"prp/pkg/metrics"
	"prp/pkg/runerrors"
)

// ClientFactory builds provider clients from configuration, resolving API
// keys from decrypted secrets first and the environment second.
type ClientFactory struct {
	cfg      *config.Config
	secrets  map[string]string
	recorder metrics.Recorder
}

// NewClientFactory creates a factory. Secrets may be nil; a nil recorder
// discards metrics.
func NewClientFactory(cfg *config.Config, secrets map[string]string, recorder metrics.Recorder) *ClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &ClientFactory{cfg: cfg, secrets: secrets, recorder: recorder}
}

// ClientForModel creates a retrying, metrics-recording client for the model.
// role labels the client's metrics ("researcher", "executor").
func (f *ClientFactory) ClientForModel(model, role string) (llm.LLMClient, error) {
	provider, err := config.ProviderForModel(model)
	if err != nil {
		return nil, err
	}

	var raw llm.LLMClient
	switch provider {
	case config.ProviderOllama:
		raw = ollama.NewClientWithModel(f.cfg.OllamaHost, model)
	default:
		key, err := f.apiKey(provider)
		if err != nil {
			return nil, err
		}
		switch provider {
		case config.ProviderAnthropic:
			raw = anthropic.NewClaudeClientWithModel(key, model)
		case config.ProviderOpenAI:
			raw = openai.NewClientWithModel(key, model)
		case config.ProviderGoogle:
			raw = google.NewGeminiClientWithModel(key, model)
		}
	}

	wrapped := NewRetryableClient(raw, DefaultRetryConfig)
	return NewMetricsClient(wrapped, f.recorder, role), nil
}

// apiKey resolves the provider's API key, preferring decrypted secrets over
// the environment.
func (f *ClientFactory) apiKey(provider string) (string, error) {
	env := config.APIKeyEnv(provider)
	if key, ok := f.secrets[env]; ok && key != "" {
		return key, nil
	}
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	return "", runerrors.NewConfiguration("missing API key: set " + env + " or store it in the secrets file")
}
