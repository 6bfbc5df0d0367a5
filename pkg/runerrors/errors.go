// Package runerrors provides the pipeline error taxonomy and fatal/non-fatal classification.
package runerrors

import (
	"errors"
	"fmt"
)

// Kind represents the category of a pipeline error.
type Kind int8

const (
	// KindUnknown is the default for unclassified errors.
	KindUnknown Kind = iota
	// KindStorage represents read/write/validation failures against persisted state.
	KindStorage
	// KindConfiguration represents missing or invalid required settings.
	KindConfiguration
	// KindResearch represents failure producing a contract for one subtask.
	KindResearch
	// KindExecution represents failure applying a contract for one subtask.
	KindExecution
)

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case KindStorage:
		return "storage"
	case KindConfiguration:
		return "configuration"
	case KindResearch:
		return "research"
	case KindExecution:
		return "execution"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// ErrDependencyUnsatisfied is a control-flow signal: the item is not yet
// eligible because a dependency is incomplete. It is never surfaced to the
// user as a failure.
var ErrDependencyUnsatisfied = errors.New("dependency unsatisfied")

// Error is a classified pipeline error. SubtaskID is set for errors scoped
// to a single work item (research/execution), empty for run-level errors.
type Error struct {
	Err       error  // Wrapped underlying error
	Message   string // Human-readable error message
	SubtaskID string // Affected subtask, if any
	Kind      Kind   // Classified error kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.SubtaskID != "" && e.Message != "":
		return fmt.Sprintf("%s error [%s]: %s", e.Kind, e.SubtaskID, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s error", e.Kind)
	}
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewStorage creates a storage error wrapping cause.
func NewStorage(cause error, message string) *Error {
	return &Error{Kind: KindStorage, Err: cause, Message: message}
}

// NewConfiguration creates a configuration error.
func NewConfiguration(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// NewResearch creates a research error scoped to one subtask.
func NewResearch(subtaskID string, cause error, message string) *Error {
	return &Error{Kind: KindResearch, SubtaskID: subtaskID, Err: cause, Message: message}
}

// NewExecution creates an execution error scoped to one subtask.
func NewExecution(subtaskID string, cause error, message string) *Error {
	return &Error{Kind: KindExecution, SubtaskID: subtaskID, Err: cause, Message: message}
}

// KindOf returns the kind of an error, or KindUnknown if not classified.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}

// Is checks if an error carries a specific kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SubtaskOf returns the subtask id an error is scoped to, or "".
func SubtaskOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.SubtaskID
	}
	return ""
}
