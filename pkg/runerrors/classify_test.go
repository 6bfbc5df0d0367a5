package runerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, NonFatal, Classify(nil, false))
	assert.Equal(t, NonFatal, Classify(nil, true))
}

func TestClassifyFatalKinds(t *testing.T) {
	storageErr := NewStorage(errors.New("disk gone"), "save failed")
	configErr := NewConfiguration("missing api key")

	assert.Equal(t, Fatal, Classify(storageErr, false))
	assert.Equal(t, Fatal, Classify(configErr, false))
}

func TestClassifyNonFatalKinds(t *testing.T) {
	researchErr := NewResearch("P1.M1.T1.S1", errors.New("bad output"), "contract generation failed")
	execErr := NewExecution("P1.M1.T1.S2", errors.New("executor failed"), "apply failed")

	assert.Equal(t, NonFatal, Classify(researchErr, false))
	assert.Equal(t, NonFatal, Classify(execErr, false))
}

func TestClassifyContinueOnErrorOverride(t *testing.T) {
	storageErr := NewStorage(errors.New("disk gone"), "save failed")

	// Operator override wins even over fatal kinds.
	assert.Equal(t, NonFatal, Classify(storageErr, true))
}

func TestClassifyUnknownDefaultsNonFatal(t *testing.T) {
	assert.Equal(t, NonFatal, Classify(errors.New("mystery"), false))
}

func TestClassifyDependencySignal(t *testing.T) {
	assert.Equal(t, NonFatal, Classify(ErrDependencyUnsatisfied, false))
	assert.Equal(t, NonFatal, Classify(fmt.Errorf("skip: %w", ErrDependencyUnsatisfied), false))
}

func TestClassifyWrappedError(t *testing.T) {
	// Classification must survive fmt.Errorf wrapping.
	inner := NewStorage(errors.New("torn write"), "load failed")
	wrapped := fmt.Errorf("session bootstrap: %w", inner)

	assert.Equal(t, Fatal, Classify(wrapped, false))
	assert.Equal(t, KindStorage, KindOf(wrapped))
}

func TestSubtaskOf(t *testing.T) {
	err := NewResearch("P2.M1.T3.S2", nil, "timeout")
	assert.Equal(t, "P2.M1.T3.S2", SubtaskOf(err))
	assert.Equal(t, "", SubtaskOf(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	err := NewExecution("P1.M1.T1.S1", nil, "validation failed")
	assert.Equal(t, "execution error [P1.M1.T1.S1]: validation failed", err.Error())

	bare := &Error{Kind: KindStorage, Err: errors.New("io fault")}
	assert.Equal(t, "storage error: io fault", bare.Error())
}
