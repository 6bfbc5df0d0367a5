package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunMetrics represents aggregated metrics for a pipeline run.
type RunMetrics struct {
	CacheHits        int64 `json:"cache_hits"`
	CacheMisses      int64 `json:"cache_misses"`
	CacheEvictions   int64 `json:"cache_evictions"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// QueryService provides methods to query recorded pipeline metrics from a
// Prometheus server.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetRunMetrics retrieves aggregated cache and token metrics across the
// recording window.
func (q *QueryService) GetRunMetrics(ctx context.Context) (*RunMetrics, error) {
	metrics := &RunMetrics{}

	var err error
	if metrics.CacheHits, err = q.sum(ctx, `sum(prp_research_cache_events_total{event="hit"})`); err != nil {
		return nil, fmt.Errorf("failed to query cache hits: %w", err)
	}
	if metrics.CacheMisses, err = q.sum(ctx, `sum(prp_research_cache_events_total{event="miss"})`); err != nil {
		return nil, fmt.Errorf("failed to query cache misses: %w", err)
	}
	if metrics.CacheEvictions, err = q.sum(ctx, `sum(prp_research_cache_events_total{event="eviction"})`); err != nil {
		return nil, fmt.Errorf("failed to query cache evictions: %w", err)
	}
	if metrics.PromptTokens, err = q.sum(ctx, `sum(prp_llm_tokens_total{type="prompt"})`); err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	if metrics.CompletionTokens, err = q.sum(ctx, `sum(prp_llm_tokens_total{type="completion"})`); err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

	return metrics, nil
}

// GetTokensByModel retrieves total token usage broken down by model.
func (q *QueryService) GetTokensByModel(ctx context.Context) (map[string]int64, error) {
	result, _, err := q.queryAPI.Query(ctx, `sum by (model) (prp_llm_tokens_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens by model: %w", err)
	}

	tokens := make(map[string]int64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				tokens[string(modelName)] = int64(sample.Value)
			}
		}
	}
	return tokens, nil
}

func (q *QueryService) sum(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}
