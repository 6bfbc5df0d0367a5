package persistence

import (
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	requirements_hash TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'running',
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);

CREATE TABLE IF NOT EXISTS subtask_outcomes (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	subtask_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	from_cache INTEGER NOT NULL DEFAULT 0,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	failure TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, subtask_id)
);

CREATE INDEX IF NOT EXISTS idx_outcomes_run ON subtask_outcomes(run_id);
`

// initializeSchema ensures the database schema is at the current version.
func initializeSchema(db *sql.DB) error {
	currentVersion, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion == 0 {
		return createSchema(db)
	}
	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
}

// createSchema creates the full schema on an empty database.
func createSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// getSchemaVersion reads the schema version from the database.
// Returns 0 for a fresh database.
func getSchemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read user_version: %w", err)
	}
	return version, nil
}
