package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructuredError_Error(t *testing.T) {
	err := New(ErrorTypeConfiguration, "engine.validate", "k must be positive")
	assert.Equal(t, "[configuration] engine.validate: k must be positive", err.Error())

	cause := errors.New("unexpected EOF")
	wrapped := WrapIOError(cause, "dataset.load", "short read")
	assert.Contains(t, wrapped.Error(), "[io] dataset.load: short read")
	assert.Contains(t, wrapped.Error(), "unexpected EOF")
	assert.Equal(t, cause, wrapped.Unwrap())
}

func TestStructuredError_WithContext(t *testing.T) {
	err := NewThreadStateError("worker.run", "unknown phase").
		WithContext("worker", 3).
		WithContext("phase", "bogus")

	assert.Equal(t, 3, err.Context["worker"])
	assert.Equal(t, "bogus", err.Context["phase"])
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, ErrorTypeConfiguration, NewConfigurationError("op", "msg").Type)
	assert.Equal(t, ErrorTypeConfiguration, NewConfigurationErrorf("op", "k=%d", 0).Type)
	assert.Equal(t, ErrorTypeThreadState, NewThreadStateError("op", "msg").Type)
	assert.Equal(t, ErrorTypeSingularInput, NewSingularInputError("op", "msg").Type)
	assert.Equal(t, ErrorTypeValidation, NewValidationError("op", "msg").Type)
	assert.Nil(t, Wrap(nil, ErrorTypeIO, "op", "msg"))
}

func TestTypeOf_ThroughWrapping(t *testing.T) {
	base := NewThreadStateError("worker.run", "run after exit")
	wrapped := fmt.Errorf("run aborted: %w", base)

	assert.True(t, IsThreadState(wrapped))
	assert.False(t, IsConfiguration(wrapped))
	assert.False(t, IsSingularInput(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))

	joined := errors.Join(errors.New("other"), NewSingularInputError("gmm.mstep", "not positive definite"))
	assert.True(t, IsSingularInput(joined))
}

func TestStackTraceCapture(t *testing.T) {
	err := NewConfigurationError("test", "message")
	assert.Greater(t, len(err.Stack), 0)
}
