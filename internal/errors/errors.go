package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorType classifies failures raised by the clustering engine.
type ErrorType string

const (
	// ErrorTypeConfiguration marks invalid or unsupported run options.
	// Raised before any worker is started.
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeThreadState marks a violation of the phase protocol: a worker
	// received an undefined phase or was asked to run after exiting.
	ErrorTypeThreadState ErrorType = "thread_state"
	// ErrorTypeSingularInput marks a degenerate numeric condition such as a
	// covariance matrix that cannot be factorized.
	ErrorTypeSingularInput ErrorType = "singular_input"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeIO            ErrorType = "io"
)

// StructuredError provides rich error context
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Stack     []uintptr
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new structured error
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, operation, message string) *StructuredError {
	if err == nil {
		return nil
	}
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// WithContext adds context information to an error
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(operation, message string) *StructuredError {
	return New(ErrorTypeConfiguration, operation, message)
}

// NewConfigurationErrorf creates a configuration error with a formatted message
func NewConfigurationErrorf(operation, format string, args ...interface{}) *StructuredError {
	return New(ErrorTypeConfiguration, operation, fmt.Sprintf(format, args...))
}

// NewThreadStateError creates a phase protocol error
func NewThreadStateError(operation, message string) *StructuredError {
	return New(ErrorTypeThreadState, operation, message)
}

// NewSingularInputError creates a numeric degeneracy error
func NewSingularInputError(operation, message string) *StructuredError {
	return New(ErrorTypeSingularInput, operation, message)
}

// NewValidationError creates a validation error
func NewValidationError(operation, message string) *StructuredError {
	return New(ErrorTypeValidation, operation, message)
}

// WrapIOError wraps an error raised while reading or writing data
func WrapIOError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeIO, operation, message)
}

// WrapValidationError wraps an error as a validation error
func WrapValidationError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeValidation, operation, message)
}

// TypeOf returns the ErrorType of the first StructuredError in err's chain,
// or "" when there is none.
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

// IsConfiguration reports whether err carries a configuration error.
func IsConfiguration(err error) bool { return TypeOf(err) == ErrorTypeConfiguration }

// IsThreadState reports whether err carries a phase protocol error.
func IsThreadState(err error) bool { return TypeOf(err) == ErrorTypeThreadState }

// IsSingularInput reports whether err carries a numeric degeneracy error.
func IsSingularInput(err error) bool { return TypeOf(err) == ErrorTypeSingularInput }
