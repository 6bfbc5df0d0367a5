package backlog

// Status represents the lifecycle state of a subtask.
type Status string

const (
	StatusPlanned      Status = "planned"
	StatusResearching  Status = "researching"
	StatusImplementing Status = "implementing"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
	StatusObsolete     Status = "obsolete"
)

// ValidStatuses returns all valid subtask statuses.
func ValidStatuses() []Status {
	return []Status{
		StatusPlanned,
		StatusResearching,
		StatusImplementing,
		StatusComplete,
		StatusFailed,
		StatusObsolete,
	}
}

// IsValidStatus checks if a status value is valid.
func IsValidStatus(status Status) bool {
	for _, valid := range ValidStatuses() {
		if status == valid {
			return true
		}
	}
	return false
}

// Terminal reports whether a status can change only through delta
// reconciliation, never through normal execution.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusObsolete
}

// CanTransition reports whether normal execution may move a subtask from one
// status to another. Obsolete is reachable only via delta reconciliation and
// is therefore rejected here.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPlanned:
		return to == StatusResearching
	case StatusResearching:
		return to == StatusImplementing || to == StatusFailed || to == StatusPlanned
	case StatusImplementing:
		return to == StatusComplete || to == StatusFailed || to == StatusPlanned
	case StatusComplete, StatusFailed, StatusObsolete:
		return false
	default:
		return false
	}
}
