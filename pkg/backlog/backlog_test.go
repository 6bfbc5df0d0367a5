package backlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTree builds a small two-phase backlog used across tests:
//
//	P1.M1.T1.S1 (no deps)
//	P1.M1.T1.S2 (depends on S1)
//	P2.M1.T1.S1 (no deps)
func testTree() *Backlog {
	b := New()
	b.Phases = []*Phase{
		{
			ID: "P1", Title: "Core", Milestones: []*Milestone{
				{
					ID: "P1.M1", Title: "Foundations", Tasks: []*Task{
						{
							ID: "P1.M1.T1", Title: "Storage", Subtasks: []*Subtask{
								{ID: "P1.M1.T1.S1", Title: "Atomic writes", Description: "temp file then rename", Status: StatusPlanned, StoryPoints: 2},
								{ID: "P1.M1.T1.S2", Title: "Load validation", Description: "strict schema", Status: StatusPlanned, StoryPoints: 3, Dependencies: []string{"P1.M1.T1.S1"}},
							},
						},
					},
				},
			},
		},
		{
			ID: "P2", Title: "Scheduler", Milestones: []*Milestone{
				{
					ID: "P2.M1", Title: "Traversal", Tasks: []*Task{
						{
							ID: "P2.M1.T1", Title: "Ordering", Subtasks: []*Subtask{
								{ID: "P2.M1.T1.S1", Title: "Pre-order DFS", Description: "deterministic order", Status: StatusPlanned, StoryPoints: 1},
							},
						},
					},
				},
			},
		},
	}
	return b
}

func TestWalkOrder(t *testing.T) {
	b := testTree()

	var ids []string
	b.Walk(func(s *Subtask) bool {
		ids = append(ids, s.ID)
		return true
	})

	assert.Equal(t, []string{"P1.M1.T1.S1", "P1.M1.T1.S2", "P2.M1.T1.S1"}, ids)
}

func TestEligible(t *testing.T) {
	b := testTree()

	assert.True(t, b.Eligible("P1.M1.T1.S1"))
	assert.False(t, b.Eligible("P1.M1.T1.S2"), "dependency not complete")
	assert.True(t, b.Eligible("P2.M1.T1.S1"))

	b2, err := b.WithStatus("P1.M1.T1.S1", StatusComplete)
	require.NoError(t, err)
	assert.True(t, b2.Eligible("P1.M1.T1.S2"))

	// Failed dependency blocks forever, never makes the dependent eligible.
	b3, err := b.WithFailure("P1.M1.T1.S1", "executor error")
	require.NoError(t, err)
	assert.False(t, b3.Eligible("P1.M1.T1.S2"))
}

func TestWithStatusImmutability(t *testing.T) {
	b := testTree()

	b2, err := b.WithStatus("P1.M1.T1.S2", StatusResearching)
	require.NoError(t, err)

	assert.Equal(t, StatusPlanned, b.FindSubtask("P1.M1.T1.S2").Status, "original tree untouched")
	assert.Equal(t, StatusResearching, b2.FindSubtask("P1.M1.T1.S2").Status)

	// Untouched branches are shared, not copied.
	assert.Same(t, b.Phases[1], b2.Phases[1])
	assert.Same(t, b.FindSubtask("P1.M1.T1.S1"), b2.FindSubtask("P1.M1.T1.S1"))
}

func TestWithStatusUnknownID(t *testing.T) {
	b := testTree()
	_, err := b.WithStatus("P9.M9.T9.S9", StatusComplete)
	assert.Error(t, err)
}

func TestWithFailureRetainsReason(t *testing.T) {
	b := testTree()
	b2, err := b.WithFailure("P1.M1.T1.S1", "research timed out")
	require.NoError(t, err)

	s := b2.FindSubtask("P1.M1.T1.S1")
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, "research timed out", s.FailureReason)

	// Moving away from Failed clears the stale reason.
	b3, err := b2.WithStatus("P1.M1.T1.S1", StatusPlanned)
	require.NoError(t, err)
	assert.Empty(t, b3.FindSubtask("P1.M1.T1.S1").FailureReason)
}

func TestValidateRejectsBadTrees(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Backlog)
	}{
		{"malformed subtask id", func(b *Backlog) {
			b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].ID = "S1"
		}},
		{"subtask under wrong parent", func(b *Backlog) {
			b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].ID = "P2.M1.T1.S9"
		}},
		{"illegal status", func(b *Backlog) {
			b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].Status = "done"
		}},
		{"nonpositive story points", func(b *Backlog) {
			b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].StoryPoints = 0
		}},
		{"dangling dependency", func(b *Backlog) {
			b.Phases[0].Milestones[0].Tasks[0].Subtasks[1].Dependencies = []string{"P1.M1.T1.S7"}
		}},
		{"self dependency", func(b *Backlog) {
			b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].Dependencies = []string{"P1.M1.T1.S1"}
		}},
		{"dependency cycle", func(b *Backlog) {
			b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].Dependencies = []string{"P1.M1.T1.S2"}
		}},
		{"missing title", func(b *Backlog) {
			b.Phases[0].Title = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := testTree().Clone()
			tc.mutate(b)
			assert.Error(t, b.Validate())
		})
	}
}

func TestUnmarshalRejectsUnknownFields(t *testing.T) {
	b := testTree()
	data, err := b.Marshal()
	require.NoError(t, err)

	// Round trip works.
	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Len(t, parsed.Subtasks(), 3)

	// Unknown fields are rejected, not dropped.
	tampered := append([]byte(`{"surprise": true,`), data[1:]...)
	_, err = Unmarshal(tampered)
	assert.Error(t, err)
}

func TestContentHashSensitivity(t *testing.T) {
	s := &Subtask{ID: "P1.M1.T1.S1", Title: "a", Description: "b", Status: StatusPlanned, StoryPoints: 1}
	base := ContentHash(s)

	edited := *s
	edited.Description = "changed"
	assert.NotEqual(t, base, ContentHash(&edited))

	// Generated scope and status changes do not invalidate contracts.
	scoped := *s
	scoped.ContextScope = "contract"
	assert.Equal(t, base, ContentHash(&scoped))

	executed := *s
	executed.Status = StatusComplete
	assert.Equal(t, base, ContentHash(&executed))
}

func TestRollupStatus(t *testing.T) {
	subtasks := func(statuses ...Status) []*Subtask {
		out := make([]*Subtask, len(statuses))
		for i, st := range statuses {
			out[i] = &Subtask{Status: st}
		}
		return out
	}

	assert.Equal(t, StatusComplete, RollupStatus(subtasks(StatusComplete, StatusComplete)))
	assert.Equal(t, StatusFailed, RollupStatus(subtasks(StatusComplete, StatusFailed)))
	assert.Equal(t, StatusResearching, RollupStatus(subtasks(StatusPlanned, StatusResearching)))
	assert.Equal(t, StatusImplementing, RollupStatus(subtasks(StatusResearching, StatusImplementing)))
	assert.Equal(t, StatusObsolete, RollupStatus(subtasks(StatusObsolete)))
	assert.Equal(t, StatusPlanned, RollupStatus(nil))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPlanned, StatusResearching))
	assert.True(t, CanTransition(StatusResearching, StatusImplementing))
	assert.True(t, CanTransition(StatusResearching, StatusFailed))
	assert.True(t, CanTransition(StatusImplementing, StatusComplete))
	assert.True(t, CanTransition(StatusImplementing, StatusFailed))

	// Resume resets in-flight items back to Planned.
	assert.True(t, CanTransition(StatusResearching, StatusPlanned))
	assert.True(t, CanTransition(StatusImplementing, StatusPlanned))

	assert.False(t, CanTransition(StatusPlanned, StatusImplementing))
	assert.False(t, CanTransition(StatusComplete, StatusPlanned))
	assert.False(t, CanTransition(StatusPlanned, StatusObsolete), "obsolete only via reconciliation")
}

func TestDone(t *testing.T) {
	b := testTree()
	assert.False(t, b.Done())

	var err error
	for _, id := range []string{"P1.M1.T1.S1", "P1.M1.T1.S2", "P2.M1.T1.S1"} {
		b, err = b.WithStatus(id, StatusComplete)
		require.NoError(t, err)
	}
	assert.True(t, b.Done())

	// A subtask blocked behind a failed dependency counts as done-for-this-run.
	b2 := testTree()
	b2, err = b2.WithFailure("P1.M1.T1.S1", "boom")
	require.NoError(t, err)
	b2, err = b2.WithStatus("P2.M1.T1.S1", StatusComplete)
	require.NoError(t, err)
	assert.True(t, b2.Done())
}

func TestDoneTerminatesOnDependencyCycle(t *testing.T) {
	// Validate rejects cycles, but a tree staged in memory may not have been
	// validated yet. Done must terminate on it, and cycle members can never
	// run, so they count as done-for-this-run.
	b := testTree()
	b.Phases[0].Milestones[0].Tasks[0].Subtasks[0].Dependencies = []string{"P1.M1.T1.S2"}
	require.Error(t, b.Validate())

	b, err := b.WithStatus("P2.M1.T1.S1", StatusComplete)
	require.NoError(t, err)

	assert.True(t, b.Done())
	assert.False(t, b.Eligible("P1.M1.T1.S1"))
	assert.False(t, b.Eligible("P1.M1.T1.S2"))
}
