package backlog

import (
	"fmt"
	"regexp"
	"strings"
)

// Work item ids are hierarchical dotted identifiers encoding the ancestor
// path: P2, P2.M1, P2.M1.T3, P2.M1.T3.S2. Numbering may be sparse or
// non-sequential; ids are matched exactly, never by array position.
var (
	phasePattern     = regexp.MustCompile(`^P\d+$`)
	milestonePattern = regexp.MustCompile(`^P\d+\.M\d+$`)
	taskPattern      = regexp.MustCompile(`^P\d+\.M\d+\.T\d+$`)
	subtaskPattern   = regexp.MustCompile(`^P\d+\.M\d+\.T\d+\.S\d+$`)
)

// ValidID checks that an id is well-formed for the given kind.
func ValidID(kind Kind, id string) bool {
	switch kind {
	case KindPhase:
		return phasePattern.MatchString(id)
	case KindMilestone:
		return milestonePattern.MatchString(id)
	case KindTask:
		return taskPattern.MatchString(id)
	case KindSubtask:
		return subtaskPattern.MatchString(id)
	default:
		return false
	}
}

// ParentID returns the id of the parent work item, or "" for a phase.
func ParentID(id string) string {
	idx := strings.LastIndex(id, ".")
	if idx < 0 {
		return ""
	}
	return id[:idx]
}

// ChildID builds a child id from a parent id and a child segment.
func ChildID(parent, segment string) string {
	if parent == "" {
		return segment
	}
	return fmt.Sprintf("%s.%s", parent, segment)
}
