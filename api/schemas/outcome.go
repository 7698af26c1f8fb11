// File: api/schemas/outcome.go
package schemas

import (
	"time"
)

// Evidence is the diagnostic artifact produced when a routine fails. It is
// created fresh per failure and handed to exactly one translation request.
type Evidence struct {
	RunID          string    `json:"run_id"`
	Attempt        int       `json:"attempt"`
	Code           ErrorCode `json:"code"`
	Error          string    `json:"error"`
	StatementIndex int       `json:"statement_index"` // 1-based, 0 when the fault is not tied to a statement.
	Statement      string    `json:"statement,omitempty"`
	PageURL        string    `json:"page_url,omitempty"`
	// ScreenshotPath is empty when the capture itself failed.
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	CaptureError   string    `json:"capture_error,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`

	// Screenshot holds the raw PNG so the translator can attach it without re-reading the file.
	Screenshot []byte `json:"-"`
}

// HasScreenshot reports whether a screenshot was captured and persisted.
func (e *Evidence) HasScreenshot() bool {
	return e != nil && e.ScreenshotPath != ""
}

// OutcomeStatus tags the result of one execution.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// Outcome is the tagged result of one execution engine invocation.
type Outcome struct {
	Status   OutcomeStatus
	Evidence *Evidence // Non-nil iff Status is OutcomeFailure.
	Err      error
	Duration time.Duration
}

// Succeeded is a convenience check on Status.
func (o Outcome) Succeeded() bool { return o.Status == OutcomeSuccess }

// DecisionKind is the branch chosen by the retry controller after a failure.
type DecisionKind string

const (
	DecisionAbort DecisionKind = "abort"
	DecisionRetry DecisionKind = "retry"
)

// Decision is the retry controller's verdict. Source carries the regenerated,
// normalized routine when Kind is DecisionRetry.
type Decision struct {
	Kind   DecisionKind
	Source string
	Reason string
}
