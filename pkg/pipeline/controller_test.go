package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prp/pkg/config"
	"prp/pkg/persistence"
	"prp/pkg/runerrors"
)

const controllerDoc = `---
version: "1.0"
project: pipeline-test
---

# Plan: Importer

## P1: Ingestion

### P1.M1: Files

#### P1.M1.T1: CSV

##### P1.M1.T1.S1: Read CSV rows
**Points:** 1
Stream rows from disk.

##### P1.M1.T1.S2: Validate rows
**Points:** 2
**Depends:** P1.M1.T1.S1
Reject malformed rows.
`

const controllerDocChanged = `---
version: "1.0"
project: pipeline-test
---

# Plan: Importer

## P1: Ingestion

### P1.M1: Files

#### P1.M1.T1: CSV

##### P1.M1.T1.S1: Read CSV rows
**Points:** 1
Stream rows from disk.

##### P1.M1.T1.S2: Validate rows strictly
**Points:** 2
**Depends:** P1.M1.T1.S1
Reject malformed rows and log them.

##### P1.M1.T1.S3: Import rows
**Points:** 2
**Depends:** P1.M1.T1.S2
Write validated rows to the store.
`

func writeRequirements(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "requirements.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestController(t *testing.T, workDir string, researcher *scriptedResearcher, executor *scriptedExecutor) *Controller {
	t.Helper()
	return NewController(ControllerOptions{
		Config:     config.DefaultConfig(),
		WorkDir:    workDir,
		Researcher: researcher,
		Executor:   executor,
	})
}

func TestControllerFreshRunCompletesBacklog(t *testing.T) {
	dir := t.TempDir()
	reqPath := writeRequirements(t, dir, controllerDoc)
	researcher := &scriptedResearcher{}
	executor := &scriptedExecutor{}

	result, err := newTestController(t, dir, researcher, executor).Run(context.Background(), reqPath)
	require.NoError(t, err)
	require.NotNil(t, result.Summary)

	assert.True(t, result.Created)
	assert.Nil(t, result.Changes)
	assert.Equal(t, 2, result.Summary.Completed)
	assert.Equal(t, []string{"P1.M1.T1.S1", "P1.M1.T1.S2"}, executor.calls)
}

func TestControllerResumeDoesNotRedoCompletedWork(t *testing.T) {
	dir := t.TempDir()
	reqPath := writeRequirements(t, dir, controllerDoc)

	first := &scriptedExecutor{}
	_, err := newTestController(t, dir, &scriptedResearcher{}, first).Run(context.Background(), reqPath)
	require.NoError(t, err)

	second := &scriptedExecutor{}
	result, err := newTestController(t, dir, &scriptedResearcher{}, second).Run(context.Background(), reqPath)
	require.NoError(t, err)

	assert.False(t, result.Created)
	assert.Empty(t, second.calls)
	assert.Zero(t, result.Summary.Completed)
}

func TestControllerDeltaPreservesCompletedWork(t *testing.T) {
	dir := t.TempDir()
	reqPath := writeRequirements(t, dir, controllerDoc)

	_, err := newTestController(t, dir, &scriptedResearcher{}, &scriptedExecutor{}).Run(context.Background(), reqPath)
	require.NoError(t, err)

	// The document changes: S2 is reworded, S3 is new.
	reqPath = writeRequirements(t, dir, controllerDocChanged)
	executor := &scriptedExecutor{}
	result, err := newTestController(t, dir, &scriptedResearcher{}, executor).Run(context.Background(), reqPath)
	require.NoError(t, err)

	assert.True(t, result.Created)
	require.NotNil(t, result.Changes)
	assert.Equal(t, []string{"P1.M1.T1.S3"}, result.Changes.Added)
	assert.Equal(t, []string{"P1.M1.T1.S2"}, result.Changes.Reset)
	assert.Equal(t, []string{"P1.M1.T1.S1"}, result.Changes.Unchanged)

	// S1 survived untouched; only the reset and new subtasks ran.
	assert.Equal(t, []string{"P1.M1.T1.S2", "P1.M1.T1.S3"}, executor.calls)
	assert.Equal(t, 2, result.Summary.Completed)
}

func TestControllerDryRunExecutesNothing(t *testing.T) {
	dir := t.TempDir()
	reqPath := writeRequirements(t, dir, controllerDoc)
	executor := &scriptedExecutor{}

	controller := NewController(ControllerOptions{
		Config:  config.DefaultConfig(),
		WorkDir: dir,
		DryRun:  true,
	})
	result, err := controller.Run(context.Background(), reqPath)
	require.NoError(t, err)

	assert.Nil(t, result.Summary)
	assert.Empty(t, executor.calls)
	assert.True(t, result.Created)
}

func TestControllerMissingRequirementsIsConfigurationError(t *testing.T) {
	dir := t.TempDir()
	_, err := newTestController(t, dir, &scriptedResearcher{}, &scriptedExecutor{}).
		Run(context.Background(), filepath.Join(dir, "nope.md"))
	require.Error(t, err)
	assert.Equal(t, runerrors.KindConfiguration, runerrors.KindOf(err))
}

func TestControllerRecordsRunReport(t *testing.T) {
	dir := t.TempDir()
	reqPath := writeRequirements(t, dir, controllerDoc)

	reports, err := persistence.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer func() { _ = reports.Close() }()

	executor := &scriptedExecutor{fail: map[string]error{
		"P1.M1.T1.S2": runerrors.NewExecution("P1.M1.T1.S2", nil, "tests failed"),
	}}
	controller := NewController(ControllerOptions{
		Config:     config.DefaultConfig(),
		WorkDir:    dir,
		Researcher: &scriptedResearcher{},
		Executor:   executor,
		Reports:    reports,
	})

	result, err := controller.Run(context.Background(), reqPath)
	require.NoError(t, err)
	require.NotEmpty(t, result.RunID)

	report, err := reports.Report(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.RunStatusCompleted, report.Run.Status)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Failed)

	var failed *persistence.SubtaskOutcome
	for _, o := range report.Outcomes {
		if o.Status == persistence.OutcomeFailed {
			failed = o
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "P1.M1.T1.S2", failed.SubtaskID)
	assert.Contains(t, failed.Failure, "tests failed")
}

func TestControllerForcedFailureScenario(t *testing.T) {
	// S1 fails, S2 depends on S1: the run exits cleanly with S2 untouched.
	dir := t.TempDir()
	reqPath := writeRequirements(t, dir, controllerDoc)

	executor := &scriptedExecutor{fail: map[string]error{
		"P1.M1.T1.S1": runerrors.NewExecution("P1.M1.T1.S1", nil, "forced failure"),
	}}
	result, err := newTestController(t, dir, &scriptedResearcher{}, executor).Run(context.Background(), reqPath)

	// Non-fatal: no error escalates out of the run.
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 1, result.Summary.Skipped)
	assert.Zero(t, result.Summary.Completed)

	var statuses []string
	for _, o := range result.Summary.Outcomes {
		statuses = append(statuses, o.SubtaskID+"="+o.Status)
	}
	assert.Equal(t, []string{"P1.M1.T1.S1=failed", "P1.M1.T1.S2=skipped"}, statuses)
}
