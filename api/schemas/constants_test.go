package schemas_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// TestConstants pins the values that end up in evidence sidecars and prompts.
func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant interface{}
		expected string
	}{
		{"ExecutionFailure", schemas.ErrCodeExecutionFailure, "EXECUTION_FAILURE"},
		{"InvalidParameters", schemas.ErrCodeInvalidParameters, "INVALID_PARAMETERS"},
		{"UnknownAction", schemas.ErrCodeUnknownAction, "UNKNOWN_ACTION_TYPE"},
		{"SyntaxError", schemas.ErrCodeSyntaxError, "SYNTAX_ERROR"},
		{"ElementNotFound", schemas.ErrCodeElementNotFound, "ELEMENT_NOT_FOUND"},
		{"TimeoutError", schemas.ErrCodeTimeoutError, "TIMEOUT_ERROR"},
		{"NavigationError", schemas.ErrCodeNavigationError, "NAVIGATION_ERROR"},
		{"ExecutorPanic", schemas.ErrCodeExecutorPanic, "EXECUTOR_PANIC"},
		{"Cancelled", schemas.ErrCodeCancelled, "CANCELLED"},

		{"OutcomeSuccess", schemas.OutcomeSuccess, "success"},
		{"OutcomeFailure", schemas.OutcomeFailure, "failure"},
		{"DecisionAbort", schemas.DecisionAbort, "abort"},
		{"DecisionRetry", schemas.DecisionRetry, "retry"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, fmt.Sprintf("%v", tc.constant))
		})
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	all := []error{
		schemas.ErrTranslation,
		schemas.ErrEmptyGeneration,
		schemas.ErrMalformedRoutine,
		schemas.ErrExecution,
		schemas.ErrEvidenceCapture,
		schemas.ErrResourceAcquisition,
	}
	seen := make(map[string]bool)
	for _, err := range all {
		assert.False(t, seen[err.Error()], "duplicate message %q", err)
		seen[err.Error()] = true
	}
}

func TestOutcomeAndEvidenceHelpers(t *testing.T) {
	assert.True(t, schemas.Outcome{Status: schemas.OutcomeSuccess}.Succeeded())
	assert.False(t, schemas.Outcome{Status: schemas.OutcomeFailure}.Succeeded())

	var nilEvidence *schemas.Evidence
	assert.False(t, nilEvidence.HasScreenshot())
	assert.False(t, (&schemas.Evidence{Screenshot: []byte{1}}).HasScreenshot(), "bytes alone were never persisted")
	assert.True(t, (&schemas.Evidence{ScreenshotPath: "attempt-1.png"}).HasScreenshot())
}
