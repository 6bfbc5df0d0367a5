package research

import (
	"context"
	"sync"
	"time"

	"prp/pkg/backlog"
	"prp/pkg/logx"
	"prp/pkg/metrics"
	"prp/pkg/runerrors"
)

const (
	// DefaultConcurrency bounds how many subtasks are researched at once.
	DefaultConcurrency = 3

	// DefaultMaxRetries is how many times a failed generation is retried
	// before the subtask is reported as failed.
	DefaultMaxRetries = 2
)

// Researcher generates an implementation contract for a single subtask.
type Researcher interface {
	GenerateContract(ctx context.Context, subtask *backlog.Subtask) (string, error)
}

// Result is the outcome of researching one subtask. Exactly one of Contract
// or Err is meaningful.
type Result struct {
	SubtaskID string
	Contract  string
	FromCache bool
	Attempts  int
	Err       error
}

// QueueConfig tunes the research queue. Zero values fall back to defaults.
type QueueConfig struct {
	Concurrency int
	MaxRetries  int
	Recorder    metrics.Recorder
}

// Queue fans subtasks out to a bounded pool of research workers and merges
// their results. A failure on one subtask never blocks the others.
type Queue struct {
	researcher  Researcher
	cache       *Cache
	recorder    metrics.Recorder
	logger      *logx.Logger
	concurrency int
	maxRetries  int
}

// NewQueue creates a research queue backed by the given researcher and cache.
func NewQueue(researcher Researcher, cache *Cache, cfg QueueConfig) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.Nop()
	}
	return &Queue{
		researcher:  researcher,
		cache:       cache,
		recorder:    cfg.Recorder,
		logger:      logx.NewLogger("research-queue"),
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
	}
}

// Run researches all given subtasks and returns one result per subtask, in
// input order. Cached contracts are returned without touching the
// researcher. Cancelling the context stops dispatching; subtasks that never
// ran are reported with the context's error.
func (q *Queue) Run(ctx context.Context, subtasks []*backlog.Subtask) []Result {
	jobs := make(chan *backlog.Subtask)
	resultCh := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				resultCh <- q.researchOne(ctx, s)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, s := range subtasks {
			select {
			case jobs <- s:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Single consumer merges worker output.
	byID := make(map[string]Result, len(subtasks))
	for res := range resultCh {
		byID[res.SubtaskID] = res
	}

	results := make([]Result, 0, len(subtasks))
	for _, s := range subtasks {
		res, ok := byID[s.ID]
		if !ok {
			res = Result{SubtaskID: s.ID, Err: ctx.Err()}
		}
		results = append(results, res)
	}
	return results
}

// researchOne resolves a single subtask's contract, consulting the cache
// first and retrying transient generation failures.
func (q *Queue) researchOne(ctx context.Context, s *backlog.Subtask) Result {
	if q.cache != nil {
		if contract, ok := q.cache.Lookup(s); ok {
			q.logger.Debug("Cache hit for %s", s.ID)
			return Result{SubtaskID: s.ID, Contract: contract, FromCache: true}
		}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{SubtaskID: s.ID, Attempts: attempts, Err: err}
		}
		if attempt > 0 {
			q.recorder.IncResearchRetry(s.ID)
			q.logger.Info("Retrying research for %s (attempt %d/%d)", s.ID, attempt+1, q.maxRetries+1)
		}

		start := time.Now()
		contract, err := q.researcher.GenerateContract(ctx, s)
		q.recorder.ObserveResearch(err == nil, time.Since(start))
		attempts++

		if err == nil {
			if q.cache != nil {
				if cacheErr := q.cache.Put(s, contract); cacheErr != nil {
					q.logger.Warn("Failed to cache contract for %s: %v", s.ID, cacheErr)
				}
			}
			return Result{SubtaskID: s.ID, Contract: contract, Attempts: attempts}
		}

		lastErr = err
		if !retryable(err) {
			break
		}
	}

	q.logger.Error("Research failed for %s: %v", s.ID, lastErr)
	// Already-classified errors keep their kind; wrapping a configuration
	// fault as a research failure would hide it from fatality checks.
	finalErr := lastErr
	if runerrors.KindOf(lastErr) == runerrors.KindUnknown {
		finalErr = runerrors.NewResearch(s.ID, lastErr, "contract generation failed")
	}
	return Result{SubtaskID: s.ID, Attempts: attempts, Err: finalErr}
}

// retryable reports whether a generation error is worth another attempt.
// Misconfiguration and storage faults will not heal on retry.
func retryable(err error) bool {
	switch runerrors.KindOf(err) {
	case runerrors.KindConfiguration, runerrors.KindStorage:
		return false
	default:
		return true
	}
}
