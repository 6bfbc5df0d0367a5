// Package pipeline drives a session's backlog to completion: round-based
// selection of eligible subtasks, concurrent research, serial execution,
// and checkpointed persistence through the session store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prp/pkg/backlog"
	"prp/pkg/logx"
	"prp/pkg/metrics"
	"prp/pkg/research"
	"prp/pkg/runerrors"
	"prp/pkg/session"
)

// Executor applies a generated contract to a single subtask. Whatever nested
// validation it runs internally is reduced to success or error here.
type Executor interface {
	Execute(ctx context.Context, s *backlog.Subtask, contract string) (string, error)
}

// Outcome statuses reported in a run summary.
const (
	OutcomeComplete = "complete"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Outcome is the per-subtask record of one run.
type Outcome struct {
	SubtaskID  string
	Title      string
	Status     string
	Attempts   int
	FromCache  bool
	DurationMS int64
	Failure    string
}

// Summary aggregates a run's outcomes for reporting.
type Summary struct {
	Outcomes  []Outcome
	Completed int
	Failed    int
	Skipped   int
}

// Options tunes an orchestrator. Zero values are usable defaults.
type Options struct {
	ContinueOnError bool
	Recorder        metrics.Recorder
}

// Orchestrator runs the research/implement lifecycle over one session's
// backlog. It holds no authoritative state of its own: eligibility is
// re-derived from persisted status plus dependencies on every round, so a
// restarted run picks up exactly where the last flush left off.
type Orchestrator struct {
	store           *session.Store
	queue           *research.Queue
	executor        Executor
	recorder        metrics.Recorder
	logger          *logx.Logger
	continueOnError bool
}

// NewOrchestrator creates an orchestrator over the given store, research
// queue, and executor.
func NewOrchestrator(store *session.Store, queue *research.Queue, executor Executor, opts Options) *Orchestrator {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Orchestrator{
		store:           store,
		queue:           queue,
		executor:        executor,
		recorder:        recorder,
		logger:          logx.NewLogger("orchestrator"),
		continueOnError: opts.ContinueOnError,
	}
}

// Run drives the backlog until no subtask can make further progress or a
// fatal error aborts the run. The returned summary covers every subtask
// visited or skipped; it is valid even when err is non-nil. Subtasks whose
// dependencies failed are left Planned and reported as skipped, never
// failed.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	if err := o.resetInFlight(); err != nil {
		return &Summary{}, err
	}

	summary := &Summary{}
	outcomes := make(map[string]Outcome)

	for {
		if err := ctx.Err(); err != nil {
			return o.finish(summary, outcomes), err
		}

		eligible := o.eligibleSubtasks()
		if len(eligible) == 0 {
			break
		}

		if err := o.runRound(ctx, eligible, outcomes); err != nil {
			return o.finish(summary, outcomes), err
		}
	}

	return o.finish(summary, outcomes), nil
}

// eligibleSubtasks returns the Planned subtasks whose dependencies are all
// Complete, in traversal order.
func (o *Orchestrator) eligibleSubtasks() []*backlog.Subtask {
	b := o.store.Pending()
	var eligible []*backlog.Subtask
	for _, s := range b.Subtasks() {
		if b.Eligible(s.ID) {
			eligible = append(eligible, s)
		}
	}
	return eligible
}

// runRound researches the eligible set concurrently, then executes the
// successfully researched subtasks serially in traversal order. A non-fatal
// failure records the subtask and the round continues; a fatal error flushes
// staged state and aborts.
func (o *Orchestrator) runRound(ctx context.Context, eligible []*backlog.Subtask, outcomes map[string]Outcome) error {
	o.logger.Info("Round: %d eligible subtask(s)", len(eligible))

	for _, s := range eligible {
		if err := o.store.UpdateStatus(s.ID, backlog.StatusResearching); err != nil {
			return err
		}
	}
	if err := o.store.Flush(); err != nil {
		return err
	}

	results := o.queue.Run(ctx, eligible)

	for i, res := range results {
		s := eligible[i]

		if res.Err != nil {
			if interrupted(res.Err) {
				// Never ran or was cut off mid-flight: back to Planned so a
				// resume picks it up, not a failure.
				if err := o.store.UpdateStatus(s.ID, backlog.StatusPlanned); err != nil {
					return err
				}
				continue
			}
			if err := o.failSubtask(s, res, outcomes, fmt.Sprintf("research: %v", res.Err)); err != nil {
				return err
			}
			if runerrors.Classify(res.Err, o.continueOnError) == runerrors.Fatal {
				_ = o.store.Flush()
				return res.Err
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			if uerr := o.store.UpdateStatus(s.ID, backlog.StatusPlanned); uerr != nil {
				return uerr
			}
			continue
		}

		if err := o.executeSubtask(ctx, s, res, outcomes); err != nil {
			_ = o.store.Flush()
			return err
		}

		// Checkpoint after each executed subtask.
		if err := o.store.Flush(); err != nil {
			return err
		}
	}

	return o.store.Flush()
}

// executeSubtask stages the contract, runs the executor, and records the
// result. Returns an error only for fatal conditions.
func (o *Orchestrator) executeSubtask(ctx context.Context, s *backlog.Subtask, res research.Result, outcomes map[string]Outcome) error {
	if err := o.store.SetContextScope(s.ID, res.Contract); err != nil {
		return err
	}
	if err := o.store.UpdateStatus(s.ID, backlog.StatusImplementing); err != nil {
		return err
	}

	start := time.Now()
	_, execErr := o.executor.Execute(ctx, s, res.Contract)
	elapsed := time.Since(start)

	if execErr != nil {
		if interrupted(execErr) {
			return o.store.UpdateStatus(s.ID, backlog.StatusPlanned)
		}
		if err := o.failSubtask(s, res, outcomes, fmt.Sprintf("execution: %v", execErr)); err != nil {
			return err
		}
		if runerrors.Classify(execErr, o.continueOnError) == runerrors.Fatal {
			return execErr
		}
		return nil
	}

	if err := o.store.UpdateStatus(s.ID, backlog.StatusComplete); err != nil {
		return err
	}
	o.recorder.IncSubtaskOutcome(OutcomeComplete)
	o.logger.Info("Completed %s (%s)", s.ID, s.Title)
	outcomes[s.ID] = Outcome{
		SubtaskID:  s.ID,
		Title:      s.Title,
		Status:     OutcomeComplete,
		Attempts:   res.Attempts,
		FromCache:  res.FromCache,
		DurationMS: elapsed.Milliseconds(),
	}
	return nil
}

// failSubtask marks the subtask Failed with the reason retained for
// reporting.
func (o *Orchestrator) failSubtask(s *backlog.Subtask, res research.Result, outcomes map[string]Outcome, reason string) error {
	if err := o.store.RecordFailure(s.ID, reason); err != nil {
		return err
	}
	o.recorder.IncSubtaskOutcome(OutcomeFailed)
	o.logger.Warn("Failed %s: %s", s.ID, reason)
	outcomes[s.ID] = Outcome{
		SubtaskID: s.ID,
		Title:     s.Title,
		Status:    OutcomeFailed,
		Attempts:  res.Attempts,
		FromCache: res.FromCache,
		Failure:   reason,
	}
	return nil
}

// resetInFlight returns subtasks left Researching or Implementing by an
// interrupted run to Planned. Work up to the last flush is preserved;
// re-running an interrupted transition is safe.
func (o *Orchestrator) resetInFlight() error {
	for _, s := range o.store.Pending().Subtasks() {
		if s.Status == backlog.StatusResearching || s.Status == backlog.StatusImplementing {
			o.logger.Info("Resuming: resetting in-flight %s to planned", s.ID)
			if err := o.store.UpdateStatus(s.ID, backlog.StatusPlanned); err != nil {
				return err
			}
		}
	}
	return o.store.Flush()
}

// finish folds recorded outcomes plus still-blocked subtasks into the final
// summary, in traversal order.
func (o *Orchestrator) finish(summary *Summary, outcomes map[string]Outcome) *Summary {
	for _, s := range o.store.Pending().Subtasks() {
		outcome, ok := outcomes[s.ID]
		if !ok {
			if s.Status != backlog.StatusPlanned {
				continue
			}
			// Eligible never became true: blocked behind a failed or
			// obsolete dependency, or the run was cut short.
			outcome = Outcome{SubtaskID: s.ID, Title: s.Title, Status: OutcomeSkipped}
			o.recorder.IncSubtaskOutcome(OutcomeSkipped)
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
		switch outcome.Status {
		case OutcomeComplete:
			summary.Completed++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeSkipped:
			summary.Skipped++
		}
	}
	return summary
}

// interrupted reports whether an error is a cancellation rather than a
// subtask failure.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
