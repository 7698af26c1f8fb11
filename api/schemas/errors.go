// File: api/schemas/errors.go
package schemas

import "errors"

// Sentinel errors for the failure taxonomy of one automation run. Callers wrap
// them with context and match with errors.Is.
var (
	// ErrTranslation means the translator was unreachable or returned unusable text.
	ErrTranslation = errors.New("translation failure")
	// ErrEmptyGeneration means the normalized routine is degenerate and must not run.
	ErrEmptyGeneration = errors.New("empty generation")
	// ErrMalformedRoutine means the routine declares its entry point more than once or out of place.
	ErrMalformedRoutine = errors.New("malformed routine")
	// ErrExecution is any fault raised while running a routine.
	ErrExecution = errors.New("execution failure")
	// ErrEvidenceCapture is a secondary fault while capturing failure evidence.
	ErrEvidenceCapture = errors.New("evidence capture failure")
	// ErrResourceAcquisition means the browser, context or page could not be created.
	ErrResourceAcquisition = errors.New("resource acquisition failure")
)

// ErrorCode is a string type used for structured error reporting from the
// execution engine. Using a custom type ensures that only predefined constants
// can be used where an ErrorCode is expected.
type ErrorCode string

const (
	// -- General Execution Errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeSyntaxError       ErrorCode = "SYNTAX_ERROR"
	// -- Browser/DOM Errors --
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError    ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNavigationError ErrorCode = "NAVIGATION_ERROR"

	// -- Internal System Errors --
	ErrCodeExecutorPanic ErrorCode = "EXECUTOR_PANIC"
	ErrCodeCancelled     ErrorCode = "CANCELLED"
)
