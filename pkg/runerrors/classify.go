package runerrors

import "errors"

// Verdict is the outcome of classifying an error.
type Verdict int8

const (
	// NonFatal fails only the current item; the run continues.
	NonFatal Verdict = iota
	// Fatal halts the entire run.
	Fatal
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	if v == Fatal {
		return "fatal"
	}
	return "non-fatal"
}

// Classify maps an error to Fatal or NonFatal. It is a pure function: no
// side effects, no logging. Callers decide what to do with the verdict.
//
// Rules, in order:
//  1. continueOnError forces NonFatal (explicit operator override).
//  2. Storage corruption and configuration errors are Fatal: the pipeline
//     cannot make further progress safely.
//  3. Research and execution errors fail only their subtask: NonFatal.
//  4. Unclassified errors default to NonFatal, favoring forward progress;
//     recorded failures can be inspected afterward.
func Classify(err error, continueOnError bool) Verdict {
	if err == nil {
		return NonFatal
	}
	if continueOnError {
		return NonFatal
	}
	if errors.Is(err, ErrDependencyUnsatisfied) {
		// Control-flow signal, not a failure.
		return NonFatal
	}

	switch KindOf(err) {
	case KindStorage, KindConfiguration:
		return Fatal
	case KindResearch, KindExecution, KindUnknown:
		return NonFatal
	default:
		return NonFatal
	}
}
