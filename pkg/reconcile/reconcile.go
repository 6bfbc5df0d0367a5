// Package reconcile patches an existing backlog against a re-decomposed
// requirements document, preserving completed work while resetting changed
// items and retiring removed ones.
package reconcile

import (
	"fmt"

	"prp/pkg/backlog"
	"prp/pkg/logx"
)

// Changes summarizes what a reconciliation did, for reporting.
type Changes struct {
	Added     []string
	Reset     []string
	Obsoleted []string
	Unchanged []string
}

// Empty reports whether reconciliation changed nothing.
func (c *Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Reset) == 0 && len(c.Obsoleted) == 0
}

// Reconcile diffs the old backlog against the hierarchy decomposed from the
// changed requirements document and produces a patched tree. Items are
// matched by stable id, never by array position, so reordering or sparse
// numbering cannot misattribute unrelated items.
//
// Rules:
//   - present in both, authored content unchanged: passed through untouched,
//     preserving status, contract, and failure history;
//   - present in both, authored content changed: reset to Planned with the
//     stale contract cleared, forcing re-research;
//   - only in the new document: appended as new Planned subtasks;
//   - only in the old backlog: marked Obsolete, never deleted. Completed
//     items stay Complete; finished work is not retroactively retired.
func Reconcile(old, decomposed *backlog.Backlog) (*backlog.Backlog, *Changes, error) {
	logger := logx.NewLogger("reconcile")
	changes := &Changes{}

	oldByID := make(map[string]*backlog.Subtask)
	if old != nil {
		old.Walk(func(s *backlog.Subtask) bool {
			oldByID[s.ID] = s
			return true
		})
	}

	// The patched tree follows the new document's structure and ordering.
	patched := decomposed.Clone()
	seen := make(map[string]bool)
	patched.Walk(func(s *backlog.Subtask) bool {
		seen[s.ID] = true
		prior, exists := oldByID[s.ID]
		if !exists {
			changes.Added = append(changes.Added, s.ID)
			return true
		}
		if backlog.DescriptionHash(prior) == backlog.DescriptionHash(s) {
			// Untouched: carry over all execution state.
			s.Status = prior.Status
			s.ContextScope = prior.ContextScope
			s.FailureReason = prior.FailureReason
			changes.Unchanged = append(changes.Unchanged, s.ID)
			return true
		}
		// Authored content changed: the old contract is stale.
		s.Status = backlog.StatusPlanned
		s.ContextScope = ""
		s.FailureReason = ""
		changes.Reset = append(changes.Reset, s.ID)
		return true
	})

	// Re-attach removed items as Obsolete, preserving audit history.
	if old != nil {
		for _, prior := range old.Subtasks() {
			if seen[prior.ID] {
				continue
			}
			retired := *prior
			retired.Dependencies = append([]string(nil), prior.Dependencies...)
			if retired.Status != backlog.StatusComplete {
				retired.Status = backlog.StatusObsolete
				changes.Obsoleted = append(changes.Obsoleted, retired.ID)
			}
			if err := attach(patched, old, &retired); err != nil {
				return nil, nil, err
			}
		}
	}

	if err := patched.Validate(); err != nil {
		return nil, nil, fmt.Errorf("reconciled backlog invalid: %w", err)
	}

	logger.Info("Reconciled: %d added, %d reset, %d obsoleted, %d unchanged",
		len(changes.Added), len(changes.Reset), len(changes.Obsoleted), len(changes.Unchanged))
	return patched, changes, nil
}

// attach appends a retired subtask under its original task, recreating any
// ancestors the new document dropped. Lookups are by id, never by index.
func attach(patched, old *backlog.Backlog, s *backlog.Subtask) error {
	taskID := backlog.ParentID(s.ID)
	milestoneID := backlog.ParentID(taskID)
	phaseID := backlog.ParentID(milestoneID)

	phase := findPhase(patched, phaseID)
	if phase == nil {
		prior := findPhase(old, phaseID)
		if prior == nil {
			return fmt.Errorf("cannot re-attach %s: phase %s missing from both trees", s.ID, phaseID)
		}
		phase = &backlog.Phase{ID: prior.ID, Title: prior.Title, Description: prior.Description}
		patched.Phases = append(patched.Phases, phase)
	}

	milestone := findMilestone(phase, milestoneID)
	if milestone == nil {
		prior := findMilestone(findPhase(old, phaseID), milestoneID)
		if prior == nil {
			return fmt.Errorf("cannot re-attach %s: milestone %s missing from both trees", s.ID, milestoneID)
		}
		milestone = &backlog.Milestone{ID: prior.ID, Title: prior.Title, Description: prior.Description}
		phase.Milestones = append(phase.Milestones, milestone)
	}

	task := findTask(milestone, taskID)
	if task == nil {
		prior := findTask(findMilestone(findPhase(old, phaseID), milestoneID), taskID)
		if prior == nil {
			return fmt.Errorf("cannot re-attach %s: task %s missing from both trees", s.ID, taskID)
		}
		task = &backlog.Task{ID: prior.ID, Title: prior.Title, Description: prior.Description}
		milestone.Tasks = append(milestone.Tasks, task)
	}

	task.Subtasks = append(task.Subtasks, s)
	return nil
}

func findPhase(b *backlog.Backlog, id string) *backlog.Phase {
	if b == nil {
		return nil
	}
	for _, p := range b.Phases {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func findMilestone(p *backlog.Phase, id string) *backlog.Milestone {
	if p == nil {
		return nil
	}
	for _, m := range p.Milestones {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func findTask(m *backlog.Milestone, id string) *backlog.Task {
	if m == nil {
		return nil
	}
	for _, t := range m.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
