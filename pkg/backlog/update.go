package backlog

import (
	"fmt"
	"time"
)

// The replacement functions below implement copy-on-write tree updates:
// the path from the root to the changed subtask is copied, every untouched
// branch is shared with the previous tree. Callers must treat returned
// trees as immutable.

// WithStatus returns a new backlog with the targeted subtask's status
// replaced. It does not enforce transition legality; the session store
// checks CanTransition, and reconciliation deliberately bypasses it.
func (b *Backlog) WithStatus(id string, status Status) (*Backlog, error) {
	if !IsValidStatus(status) {
		return nil, fmt.Errorf("invalid status %q for %s", status, id)
	}
	return b.replaceSubtask(id, func(s *Subtask) *Subtask {
		copied := *s
		copied.Status = status
		if status != StatusFailed {
			copied.FailureReason = ""
		}
		return &copied
	})
}

// WithFailure returns a new backlog with the subtask marked Failed and the
// failure reason retained for later reporting.
func (b *Backlog) WithFailure(id, reason string) (*Backlog, error) {
	return b.replaceSubtask(id, func(s *Subtask) *Subtask {
		copied := *s
		copied.Status = StatusFailed
		copied.FailureReason = reason
		return &copied
	})
}

// WithContextScope returns a new backlog with the subtask's implementation
// contract replaced.
func (b *Backlog) WithContextScope(id, scope string) (*Backlog, error) {
	return b.replaceSubtask(id, func(s *Subtask) *Subtask {
		copied := *s
		copied.ContextScope = scope
		return &copied
	})
}

// replaceSubtask walks the tree, copies the spine above the matched subtask,
// and shares every sibling branch.
func (b *Backlog) replaceSubtask(id string, replace func(*Subtask) *Subtask) (*Backlog, error) {
	found := false

	newBacklog := &Backlog{
		SchemaVersion: b.SchemaVersion,
		UpdatedAt:     time.Now().UTC(),
		Phases:        make([]*Phase, len(b.Phases)),
	}
	copy(newBacklog.Phases, b.Phases)

	for pi, p := range b.Phases {
		if !idUnder(p.ID, id) {
			continue
		}
		newPhase := *p
		newPhase.Milestones = make([]*Milestone, len(p.Milestones))
		copy(newPhase.Milestones, p.Milestones)

		for mi, m := range p.Milestones {
			if !idUnder(m.ID, id) {
				continue
			}
			newMilestone := *m
			newMilestone.Tasks = make([]*Task, len(m.Tasks))
			copy(newMilestone.Tasks, m.Tasks)

			for ti, t := range m.Tasks {
				if !idUnder(t.ID, id) {
					continue
				}
				newTask := *t
				newTask.Subtasks = make([]*Subtask, len(t.Subtasks))
				copy(newTask.Subtasks, t.Subtasks)

				for si, s := range t.Subtasks {
					if s.ID == id {
						newTask.Subtasks[si] = replace(s)
						found = true
					}
				}
				newMilestone.Tasks[ti] = &newTask
			}
			newPhase.Milestones[mi] = &newMilestone
		}
		newBacklog.Phases[pi] = &newPhase
	}

	if !found {
		return nil, fmt.Errorf("subtask %s not found", id)
	}
	return newBacklog, nil
}

// idUnder reports whether target sits at or below the subtree rooted at
// ancestorID (prefix match on full dotted segments).
func idUnder(ancestorID, target string) bool {
	if ancestorID == target {
		return true
	}
	return len(target) > len(ancestorID) &&
		target[:len(ancestorID)] == ancestorID &&
		target[len(ancestorID)] == '.'
}

// Clone returns a deep copy of the backlog. Reconciliation uses this to
// build a patched tree without aliasing the old one.
func (b *Backlog) Clone() *Backlog {
	out := &Backlog{
		SchemaVersion: b.SchemaVersion,
		UpdatedAt:     b.UpdatedAt,
		Phases:        make([]*Phase, 0, len(b.Phases)),
	}
	for _, p := range b.Phases {
		np := &Phase{ID: p.ID, Title: p.Title, Description: p.Description}
		for _, m := range p.Milestones {
			nm := &Milestone{ID: m.ID, Title: m.Title, Description: m.Description}
			for _, t := range m.Tasks {
				nt := &Task{ID: t.ID, Title: t.Title, Description: t.Description}
				for _, s := range t.Subtasks {
					ns := *s
					ns.Dependencies = append([]string(nil), s.Dependencies...)
					nt.Subtasks = append(nt.Subtasks, &ns)
				}
				nm.Tasks = append(nm.Tasks, nt)
			}
			np.Milestones = append(np.Milestones, nm)
		}
		out.Phases = append(out.Phases, np)
	}
	return out
}
