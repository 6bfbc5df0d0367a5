package pipeline

import (
	"context"

	"prp/pkg/config"
	"prp/pkg/logx"
	"prp/pkg/metrics"
	"prp/pkg/persistence"
	"prp/pkg/reconcile"
	"prp/pkg/reqdoc"
	"prp/pkg/research"
	"prp/pkg/session"
)

// ControllerOptions wires a controller's collaborators. Researcher and
// Executor are required unless DryRun is set; Reports and Recorder are
// optional.
type ControllerOptions struct {
	Config          *config.Config
	WorkDir         string
	ContinueOnError bool
	DryRun          bool
	Researcher      research.Researcher
	Executor        Executor
	Recorder        metrics.Recorder
	Reports         *persistence.Store
}

// RunResult is what a controller run produced: the session it ran in, the
// reconciliation performed (nil when none), and the orchestrator's summary
// (nil for dry runs).
type RunResult struct {
	Session *session.Session
	Created bool
	Changes *reconcile.Changes
	Summary *Summary
	RunID   string
}

// Controller is the top-level driver: it bootstraps the session from the
// requirements document, reconciles deltas against the predecessor session,
// runs the orchestrator, and records the run report.
type Controller struct {
	opts   ControllerOptions
	logger *logx.Logger
}

// NewController creates a controller from options.
func NewController(opts ControllerOptions) *Controller {
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop()
	}
	return &Controller{opts: opts, logger: logx.NewLogger("controller")}
}

// Run executes the pipeline against the requirements document at
// requirementsPath. A non-nil error is fatal; failed subtasks alone do not
// produce one.
func (c *Controller) Run(ctx context.Context, requirementsPath string) (*RunResult, error) {
	snap, err := reqdoc.Take(requirementsPath)
	if err != nil {
		return nil, err
	}

	mgr, err := session.NewManager(c.opts.WorkDir)
	if err != nil {
		return nil, err
	}

	sess, created, err := mgr.FindOrCreate(snap.ContentHash)
	if err != nil {
		return nil, err
	}
	if created {
		c.logger.Info("New session %s (seq %d)", sess.ID, sess.Seq)
	} else {
		c.logger.Info("Resuming session %s (seq %d)", sess.ID, sess.Seq)
	}

	store, err := session.NewStore(sess)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Session: sess, Created: created}
	if err := c.bootstrap(mgr, store, snap, created, result); err != nil {
		return result, err
	}

	if c.opts.DryRun {
		return result, nil
	}

	cache, err := research.NewCache(sess.ResearchDir(), c.opts.Config.Research.CacheTTL.Std(), c.opts.Recorder)
	if err != nil {
		return result, err
	}
	queue := research.NewQueue(c.opts.Researcher, cache, research.QueueConfig{
		Concurrency: c.opts.Config.Research.Concurrency,
		MaxRetries:  c.opts.Config.Research.MaxRetries,
		Recorder:    c.opts.Recorder,
	})
	orchestrator := NewOrchestrator(store, queue, c.opts.Executor, Options{
		ContinueOnError: c.opts.ContinueOnError,
		Recorder:        c.opts.Recorder,
	})

	var run *persistence.Run
	if c.opts.Reports != nil {
		run, err = c.opts.Reports.BeginRun(sess.ID, snap.ContentHash)
		if err != nil {
			return result, err
		}
		result.RunID = run.ID
	}

	summary, runErr := orchestrator.Run(ctx)
	result.Summary = summary

	if run != nil {
		c.recordReport(run.ID, summary, runErr != nil)
	}
	return result, runErr
}

// bootstrap stages the session's backlog: a fresh decomposition for a new
// root session, a reconciled delta for a new chained session, and the
// persisted tree as-is on resume.
func (c *Controller) bootstrap(mgr *session.Manager, store *session.Store, snap *reqdoc.Snapshot, created bool, result *RunResult) error {
	if !created && len(store.Pending().Subtasks()) > 0 {
		return nil
	}

	doc, err := reqdoc.Decompose(snap)
	if err != nil {
		return err
	}

	sess := store.Session()
	if created && sess.ParentSessionID != "" {
		parent, err := mgr.Parent(sess)
		if err != nil {
			return err
		}
		parentStore, err := session.NewStore(parent)
		if err != nil {
			return err
		}

		merged, changes, err := reconcile.Reconcile(parentStore.Pending(), doc.Backlog)
		if err != nil {
			return err
		}
		result.Changes = changes
		c.logger.Info("Delta from session %s: %d added, %d reset, %d obsoleted, %d unchanged",
			parent.ID, len(changes.Added), len(changes.Reset), len(changes.Obsoleted), len(changes.Unchanged))
		store.SetBacklog(merged)
	} else {
		c.logger.Info("Decomposed %q into %d subtask(s)", doc.Title, len(doc.Backlog.Subtasks()))
		store.SetBacklog(doc.Backlog)
	}

	return store.Flush()
}

// recordReport writes the run and its per-subtask outcomes to the report
// store. Reporting failures are logged, never escalated; the run itself
// already finished.
func (c *Controller) recordReport(runID string, summary *Summary, fatal bool) {
	for i := range summary.Outcomes {
		o := &summary.Outcomes[i]
		record := &persistence.SubtaskOutcome{
			RunID:      runID,
			SubtaskID:  o.SubtaskID,
			Title:      o.Title,
			Status:     o.Status,
			Attempts:   o.Attempts,
			FromCache:  o.FromCache,
			DurationMS: o.DurationMS,
			Failure:    o.Failure,
		}
		if err := c.opts.Reports.RecordOutcome(record); err != nil {
			c.logger.Warn("Failed to record outcome for %s: %v", o.SubtaskID, err)
		}
	}
	if err := c.opts.Reports.FinishRun(runID, fatal); err != nil {
		c.logger.Warn("Failed to finish run record: %v", err)
	}
}
