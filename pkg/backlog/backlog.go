// Package backlog defines the persisted work-item hierarchy: a strict
// four-level tree of Phase > Milestone > Task > Subtask. Trees are never
// mutated in place; every change goes through a replacement function that
// returns a new tree sharing untouched branches with the old one.
package backlog

import (
	"time"
)

// Kind identifies the level of a work item in the hierarchy.
type Kind string

const (
	KindPhase     Kind = "phase"
	KindMilestone Kind = "milestone"
	KindTask      Kind = "task"
	KindSubtask   Kind = "subtask"
)

// Subtask is the leaf work item. Only subtasks carry authoritative status,
// effort estimates, dependencies, and the implementation contract.
type Subtask struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Status       Status   `json:"status"`
	StoryPoints  int      `json:"story_points"`
	Dependencies []string `json:"dependencies,omitempty"`
	ContextScope string   `json:"context_scope,omitempty"`
	// FailureReason records why a subtask was marked Failed, for reporting.
	FailureReason string `json:"failure_reason,omitempty"`
}

// Task groups subtasks. Insertion order is execution order modulo dependencies.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Subtasks    []*Subtask `json:"subtasks"`
}

// Milestone groups tasks.
type Milestone struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Tasks       []*Task `json:"tasks"`
}

// Phase is a root work item.
type Phase struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Milestones  []*Milestone `json:"milestones"`
}

// Backlog is the entire persisted hierarchy for one session: an ordered
// list of root phases.
type Backlog struct {
	SchemaVersion string    `json:"schema_version"`
	UpdatedAt     time.Time `json:"updated_at"`
	Phases        []*Phase  `json:"phases"`
}

// SchemaVersion for the persisted backlog document.
const SchemaVersion = "1.0"

// New creates an empty backlog.
func New() *Backlog {
	return &Backlog{
		SchemaVersion: SchemaVersion,
		UpdatedAt:     time.Now().UTC(),
		Phases:        []*Phase{},
	}
}

// Walk visits every subtask in pre-order depth-first traversal: phases,
// milestones, tasks, and subtasks in stored order. Returning false from fn
// stops the walk.
func (b *Backlog) Walk(fn func(s *Subtask) bool) {
	for _, p := range b.Phases {
		for _, m := range p.Milestones {
			for _, t := range m.Tasks {
				for _, s := range t.Subtasks {
					if !fn(s) {
						return
					}
				}
			}
		}
	}
}

// Subtasks returns all subtasks in traversal order.
func (b *Backlog) Subtasks() []*Subtask {
	var out []*Subtask
	b.Walk(func(s *Subtask) bool {
		out = append(out, s)
		return true
	})
	return out
}

// FindSubtask returns the subtask with the given id, or nil.
func (b *Backlog) FindSubtask(id string) *Subtask {
	var found *Subtask
	b.Walk(func(s *Subtask) bool {
		if s.ID == id {
			found = s
			return false
		}
		return true
	})
	return found
}

// StatusCounts returns the number of subtasks per status.
func (b *Backlog) StatusCounts() map[Status]int {
	counts := make(map[Status]int)
	b.Walk(func(s *Subtask) bool {
		counts[s.Status]++
		return true
	})
	return counts
}

// Done reports whether no subtask can make further progress: every subtask
// is Complete, Failed, Obsolete, or blocked behind one of those.
func (b *Backlog) Done() bool {
	for _, s := range b.Subtasks() {
		if s.Status == StatusPlanned || s.Status == StatusResearching || s.Status == StatusImplementing {
			if b.Eligible(s.ID) {
				return false
			}
			// Blocked behind a Failed or Obsolete dependency: terminal for
			// this run, a human or delta must intervene.
			if !b.blockedForever(s) {
				return false
			}
		}
	}
	return true
}

// Eligible reports whether the subtask is Planned and all of its
// dependencies are Complete.
func (b *Backlog) Eligible(id string) bool {
	s := b.FindSubtask(id)
	if s == nil || s.Status != StatusPlanned {
		return false
	}
	for _, dep := range s.Dependencies {
		d := b.FindSubtask(dep)
		if d == nil || d.Status != StatusComplete {
			return false
		}
	}
	return true
}

// blockedForever reports whether some dependency is in a terminal non-Complete
// state, so the subtask can never become eligible within this run.
func (b *Backlog) blockedForever(s *Subtask) bool {
	return b.blockedIn(s, map[string]bool{s.ID: true})
}

// blockedIn walks the dependency chain with a visited set. Validate rejects
// cyclic graphs, but this must stay safe on trees staged in memory before
// their first validation; a revisited id means a cycle, which can never
// complete.
func (b *Backlog) blockedIn(s *Subtask, visited map[string]bool) bool {
	for _, dep := range s.Dependencies {
		d := b.FindSubtask(dep)
		if d == nil {
			return true
		}
		switch d.Status {
		case StatusFailed, StatusObsolete:
			return true
		case StatusPlanned, StatusResearching, StatusImplementing:
			if visited[d.ID] {
				return true
			}
			visited[d.ID] = true
			if b.blockedIn(d, visited) {
				return true
			}
		case StatusComplete:
			// Satisfied.
		}
	}
	return false
}

// RollupStatus computes a parent's displayed status from its descendant
// subtask statuses. The authoritative status lives on leaves; this is the
// derived view for reporting.
func RollupStatus(subtasks []*Subtask) Status {
	if len(subtasks) == 0 {
		return StatusPlanned
	}

	all := func(want Status) bool {
		for _, s := range subtasks {
			if s.Status != want {
				return false
			}
		}
		return true
	}
	any := func(want Status) bool {
		for _, s := range subtasks {
			if s.Status == want {
				return true
			}
		}
		return false
	}

	switch {
	case all(StatusComplete):
		return StatusComplete
	case all(StatusObsolete):
		return StatusObsolete
	case any(StatusFailed):
		return StatusFailed
	case any(StatusImplementing):
		return StatusImplementing
	case any(StatusResearching):
		return StatusResearching
	default:
		return StatusPlanned
	}
}

// SubtasksOf collects the subtasks under a phase, for roll-up display.
func SubtasksOf(p *Phase) []*Subtask {
	var out []*Subtask
	for _, m := range p.Milestones {
		for _, t := range m.Tasks {
			out = append(out, t.Subtasks...)
		}
	}
	return out
}
