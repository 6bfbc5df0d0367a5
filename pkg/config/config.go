// Package config defines pipeline configuration, loading, and secrets handling.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"prp/pkg/runerrors"
)

// DotDirName is the project-local directory holding config and secrets.
const DotDirName = ".prp"

// CurrentSchemaVersion is the config file schema this build reads and writes.
const CurrentSchemaVersion = 1

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Defaults applied when the config file is missing or fields are zero.
const (
	DefaultResearchConcurrency = 3
	DefaultMaxRetries          = 2
	DefaultResearcherModel     = "claude-sonnet-4-20250514"
	DefaultExecutorModel       = "claude-sonnet-4-20250514"
	DefaultOllamaHost          = "http://localhost:11434"
)

// DefaultCacheTTL is the default research cache entry lifetime.
const DefaultCacheTTL = 24 * time.Hour

// Duration wraps time.Duration with JSON encoding as a duration string
// ("24h", "90s").
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"24h\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ResearchConfig tunes contract generation.
type ResearchConfig struct {
	Model       string   `json:"model"`
	Concurrency int      `json:"concurrency"`
	CacheTTL    Duration `json:"cache_ttl"`
	MaxRetries  int      `json:"max_retries"`
}

// ExecutorConfig tunes subtask execution.
type ExecutorConfig struct {
	Model string `json:"model"`
}

// Config is the persisted pipeline configuration.
type Config struct {
	SchemaVersion   int            `json:"schema_version"`
	ContinueOnError bool           `json:"continue_on_error"`
	Research        ResearchConfig `json:"research"`
	Executor        ExecutorConfig `json:"executor"`
	OllamaHost      string         `json:"ollama_host"`
	PrometheusURL   string         `json:"prometheus_url,omitempty"`
}

// DefaultConfig returns a config populated with all defaults.
func DefaultConfig() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		Research: ResearchConfig{
			Model:       DefaultResearcherModel,
			Concurrency: DefaultResearchConcurrency,
			CacheTTL:    Duration(DefaultCacheTTL),
			MaxRetries:  DefaultMaxRetries,
		},
		Executor: ExecutorConfig{
			Model: DefaultExecutorModel,
		},
		OllamaHost: DefaultOllamaHost,
	}
}

// applyDefaults fills zero-valued fields in a loaded config.
func (c *Config) applyDefaults() {
	if c.Research.Model == "" {
		c.Research.Model = DefaultResearcherModel
	}
	if c.Research.Concurrency == 0 {
		c.Research.Concurrency = DefaultResearchConcurrency
	}
	if c.Research.CacheTTL == 0 {
		c.Research.CacheTTL = Duration(DefaultCacheTTL)
	}
	if c.Research.MaxRetries == 0 {
		c.Research.MaxRetries = DefaultMaxRetries
	}
	if c.Executor.Model == "" {
		c.Executor.Model = DefaultExecutorModel
	}
	if c.OllamaHost == "" {
		c.OllamaHost = DefaultOllamaHost
	}
}

// Validate checks the config for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.SchemaVersion != CurrentSchemaVersion {
		return runerrors.NewConfiguration(fmt.Sprintf("unsupported config schema version %d (want %d)", c.SchemaVersion, CurrentSchemaVersion))
	}
	if c.Research.Concurrency < 1 {
		return runerrors.NewConfiguration("research concurrency must be at least 1")
	}
	if c.Research.CacheTTL < 0 {
		return runerrors.NewConfiguration("cache TTL cannot be negative")
	}
	if c.Research.MaxRetries < 0 {
		return runerrors.NewConfiguration("max retries cannot be negative")
	}
	if _, err := ProviderForModel(c.Research.Model); err != nil {
		return err
	}
	if _, err := ProviderForModel(c.Executor.Model); err != nil {
		return err
	}
	return nil
}

// ProviderForModel maps a model name to its provider. Local Ollama models
// are recognized by their tag form ("llama3.1:8b").
func ProviderForModel(model string) (string, error) {
	switch {
	case model == "":
		return "", runerrors.NewConfiguration("model name cannot be empty")
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic, nil
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return ProviderOpenAI, nil
	case strings.HasPrefix(model, "gemini-"):
		return ProviderGoogle, nil
	case strings.Contains(model, ":"):
		return ProviderOllama, nil
	default:
		return "", runerrors.NewConfiguration(fmt.Sprintf("cannot determine provider for model %q", model))
	}
}

// APIKeyEnv returns the environment variable holding the provider's API key.
// Ollama runs locally and needs none.
func APIKeyEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}
