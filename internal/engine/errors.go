// internal/engine/errors.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/routine"
)

// StepError is the error carried by a Failure outcome.
type StepError struct {
	Statement routine.Statement // Zero when the failure precedes execution.
	Code      schemas.ErrorCode
	Err       error
}

func (e *StepError) Error() string {
	if e.Statement.Index == 0 {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s at statement %d (%s): %v", e.Code, e.Statement.Index, e.Statement.Text, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{schemas.ErrExecution, e.Err}
}

// PanicError wraps a value recovered from a panicking statement.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic during execution: %v", e.Value)
}

// classify maps a statement error onto an ErrorCode. Drivers report missing
// elements in their own words, so the text is inspected after the typed checks.
func classify(op routine.Op, err error) schemas.ErrorCode {
	var pe *PanicError
	switch {
	case errors.As(err, &pe):
		return schemas.ErrCodeExecutorPanic
	case errors.Is(err, context.Canceled):
		return schemas.ErrCodeCancelled
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such element"),
		strings.Contains(msg, "no element found"),
		strings.Contains(msg, "cannot find element"),
		strings.Contains(msg, "could not find node"):
		return schemas.ErrCodeElementNotFound
	case strings.Contains(msg, "net::err"):
		return schemas.ErrCodeNavigationError
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"):
		return schemas.ErrCodeTimeoutError
	case op == routine.OpGoto:
		return schemas.ErrCodeNavigationError
	}
	return schemas.ErrCodeExecutionFailure
}
