package backlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Validate checks the structural invariants of a backlog:
// well-formed hierarchical ids, ids consistent with their position in the
// tree, legal status values, unique subtask ids, and dependency references
// that resolve to existing subtasks.
func (b *Backlog) Validate() error {
	if b.SchemaVersion == "" {
		return fmt.Errorf("missing schema_version")
	}

	seen := make(map[string]bool)
	for _, p := range b.Phases {
		if p == nil {
			return fmt.Errorf("nil phase entry")
		}
		if !ValidID(KindPhase, p.ID) {
			return fmt.Errorf("malformed phase id %q", p.ID)
		}
		if p.Title == "" {
			return fmt.Errorf("phase %s: missing title", p.ID)
		}
		for _, m := range p.Milestones {
			if m == nil {
				return fmt.Errorf("phase %s: nil milestone entry", p.ID)
			}
			if !ValidID(KindMilestone, m.ID) {
				return fmt.Errorf("malformed milestone id %q", m.ID)
			}
			if ParentID(m.ID) != p.ID {
				return fmt.Errorf("milestone %s not under parent %s", m.ID, p.ID)
			}
			if m.Title == "" {
				return fmt.Errorf("milestone %s: missing title", m.ID)
			}
			for _, t := range m.Tasks {
				if t == nil {
					return fmt.Errorf("milestone %s: nil task entry", m.ID)
				}
				if !ValidID(KindTask, t.ID) {
					return fmt.Errorf("malformed task id %q", t.ID)
				}
				if ParentID(t.ID) != m.ID {
					return fmt.Errorf("task %s not under parent %s", t.ID, m.ID)
				}
				if t.Title == "" {
					return fmt.Errorf("task %s: missing title", t.ID)
				}
				for _, s := range t.Subtasks {
					if s == nil {
						return fmt.Errorf("task %s: nil subtask entry", t.ID)
					}
					if err := validateSubtask(s, t.ID); err != nil {
						return err
					}
					if seen[s.ID] {
						return fmt.Errorf("duplicate subtask id %s", s.ID)
					}
					seen[s.ID] = true
				}
			}
		}
	}

	// Dependency references must resolve. Self-references are malformed.
	for _, s := range b.Subtasks() {
		for _, dep := range s.Dependencies {
			if dep == s.ID {
				return fmt.Errorf("subtask %s depends on itself", s.ID)
			}
			if !seen[dep] {
				return fmt.Errorf("subtask %s: dependency %s does not exist", s.ID, dep)
			}
		}
	}

	return b.checkDependencyCycles()
}

// checkDependencyCycles rejects cyclic dependency chains. Scheduling treats
// the dependency graph as a DAG; every member of a cycle would wait on the
// others forever.
func (b *Backlog) checkDependencyCycles() error {
	deps := make(map[string][]string)
	b.Walk(func(s *Subtask) bool {
		deps[s.ID] = s.Dependencies
		return true
	})

	const (
		unvisited = iota
		visiting
		settled
	)
	state := make(map[string]int, len(deps))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("dependency cycle through subtask %s", id)
		case settled:
			return nil
		}
		state[id] = visiting
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = settled
		return nil
	}

	for _, s := range b.Subtasks() {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}

func validateSubtask(s *Subtask, parentID string) error {
	if !ValidID(KindSubtask, s.ID) {
		return fmt.Errorf("malformed subtask id %q", s.ID)
	}
	if ParentID(s.ID) != parentID {
		return fmt.Errorf("subtask %s not under parent %s", s.ID, parentID)
	}
	if s.Title == "" {
		return fmt.Errorf("subtask %s: missing title", s.ID)
	}
	if !IsValidStatus(s.Status) {
		return fmt.Errorf("subtask %s: illegal status %q", s.ID, s.Status)
	}
	if s.StoryPoints <= 0 {
		return fmt.Errorf("subtask %s: story points must be positive, got %d", s.ID, s.StoryPoints)
	}
	return nil
}

// Marshal serializes a validated backlog to indented JSON.
func (b *Backlog) Marshal() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to serialize invalid backlog: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backlog: %w", err)
	}
	return data, nil
}

// Unmarshal parses and schema-validates a persisted backlog document.
// Unknown fields are rejected, not silently dropped, to catch drift early.
func Unmarshal(data []byte) (*Backlog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var b Backlog
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode backlog: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after backlog document")
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("backlog validation failed: %w", err)
	}
	return &b, nil
}
