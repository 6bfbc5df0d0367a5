package persistence

import "time"

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFatal     = "fatal"
)

// Subtask outcome statuses.
const (
	OutcomeComplete = "complete"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Run is one invocation of the pipeline against a requirements document.
type Run struct {
	ID               string     `json:"id"`
	SessionID        string     `json:"session_id"`
	RequirementsHash string     `json:"requirements_hash"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// SubtaskOutcome records how one subtask fared within a run.
type SubtaskOutcome struct {
	RunID            string    `json:"run_id"`
	SubtaskID        string    `json:"subtask_id"`
	Title            string    `json:"title"`
	Status           string    `json:"status"`
	Attempts         int       `json:"attempts"`
	FromCache        bool      `json:"from_cache"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	DurationMS       int64     `json:"duration_ms"`
	Failure          string    `json:"failure,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// RunReport summarizes a finished run for display.
type RunReport struct {
	Run              *Run              `json:"run"`
	Outcomes         []*SubtaskOutcome `json:"outcomes"`
	Completed        int               `json:"completed"`
	Failed           int               `json:"failed"`
	Skipped          int               `json:"skipped"`
	CacheHits        int               `json:"cache_hits"`
	PromptTokens     int64             `json:"prompt_tokens"`
	CompletionTokens int64             `json:"completion_tokens"`
}
