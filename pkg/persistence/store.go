// Package persistence provides SQLite-backed run reports: one row per
// pipeline run plus one row per subtask outcome within it.
package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"prp/pkg/logx"
	"prp/pkg/runerrors"
)

// Store wraps the run-report database.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if necessary) the run-report database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, runerrors.NewStorage(err, "failed to open run database")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, runerrors.NewStorage(err, "failed to ping run database")
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, runerrors.NewStorage(err, "failed to initialize run database schema")
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db, logger: logx.NewLogger("persistence")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return runerrors.NewStorage(err, "failed to close run database")
	}
	return nil
}

// BeginRun records the start of a pipeline run and returns it.
func (s *Store) BeginRun(sessionID, requirementsHash string) (*Run, error) {
	run := &Run{
		ID:               uuid.New().String(),
		SessionID:        sessionID,
		RequirementsHash: requirementsHash,
		Status:           RunStatusRunning,
		StartedAt:        time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, session_id, requirements_hash, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.RequirementsHash, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, runerrors.NewStorage(err, "failed to record run start")
	}

	s.logger.Debug("run %s started (session %s)", run.ID, sessionID)
	return run, nil
}

// RecordOutcome upserts the outcome of one subtask within a run. A subtask
// retried across rounds keeps only its latest outcome.
func (s *Store) RecordOutcome(outcome *SubtaskOutcome) error {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO subtask_outcomes (
			run_id, subtask_id, title, status, attempts, from_cache,
			prompt_tokens, completion_tokens, duration_ms, failure, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, subtask_id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			attempts = excluded.attempts,
			from_cache = excluded.from_cache,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			duration_ms = excluded.duration_ms,
			failure = excluded.failure,
			recorded_at = excluded.recorded_at`,
		outcome.RunID, outcome.SubtaskID, outcome.Title, outcome.Status,
		outcome.Attempts, outcome.FromCache, outcome.PromptTokens,
		outcome.CompletionTokens, outcome.DurationMS, outcome.Failure,
		outcome.RecordedAt,
	)
	if err != nil {
		return runerrors.NewStorage(err, fmt.Sprintf("failed to record outcome for %s", outcome.SubtaskID))
	}
	return nil
}

// FinishRun marks a run finished. Fatal runs are recorded as such so a later
// resume can tell an aborted run from a completed one.
func (s *Store) FinishRun(runID string, fatal bool) error {
	status := RunStatusCompleted
	if fatal {
		status = RunStatusFatal
	}

	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), runID,
	)
	if err != nil {
		return runerrors.NewStorage(err, "failed to record run finish")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return runerrors.NewStorage(nil, fmt.Sprintf("unknown run %s", runID))
	}
	return nil
}

// GetRun fetches a single run by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, requirements_hash, status, started_at, finished_at
		FROM runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, runerrors.NewStorage(nil, fmt.Sprintf("unknown run %s", runID))
	}
	if err != nil {
		return nil, runerrors.NewStorage(err, "failed to load run")
	}
	return run, nil
}

// ListRuns returns all runs for a session, most recent first.
func (s *Store) ListRuns(sessionID string) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, requirements_hash, status, started_at, finished_at
		FROM runs WHERE session_id = ? ORDER BY started_at DESC`, sessionID)
	if err != nil {
		return nil, runerrors.NewStorage(err, "failed to list runs")
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, runerrors.NewStorage(err, "failed to scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, runerrors.NewStorage(err, "failed to iterate runs")
	}
	return runs, nil
}

// Report builds the summary for a run, ordered by subtask id.
func (s *Store) Report(runID string) (*RunReport, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT run_id, subtask_id, title, status, attempts, from_cache,
			prompt_tokens, completion_tokens, duration_ms, failure, recorded_at
		FROM subtask_outcomes WHERE run_id = ? ORDER BY subtask_id`, runID)
	if err != nil {
		return nil, runerrors.NewStorage(err, "failed to load run outcomes")
	}
	defer func() { _ = rows.Close() }()

	report := &RunReport{Run: run}
	for rows.Next() {
		o := &SubtaskOutcome{}
		if err := rows.Scan(
			&o.RunID, &o.SubtaskID, &o.Title, &o.Status, &o.Attempts,
			&o.FromCache, &o.PromptTokens, &o.CompletionTokens,
			&o.DurationMS, &o.Failure, &o.RecordedAt,
		); err != nil {
			return nil, runerrors.NewStorage(err, "failed to scan outcome")
		}
		report.Outcomes = append(report.Outcomes, o)

		switch o.Status {
		case OutcomeComplete:
			report.Completed++
		case OutcomeFailed:
			report.Failed++
		case OutcomeSkipped:
			report.Skipped++
		}
		if o.FromCache {
			report.CacheHits++
		}
		report.PromptTokens += o.PromptTokens
		report.CompletionTokens += o.CompletionTokens
	}
	if err := rows.Err(); err != nil {
		return nil, runerrors.NewStorage(err, "failed to iterate outcomes")
	}
	return report, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var finished sql.NullTime
	if err := row.Scan(
		&run.ID, &run.SessionID, &run.RequirementsHash,
		&run.Status, &run.StartedAt, &finished,
	); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}
