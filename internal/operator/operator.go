// internal/operator/operator.go
package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/routine"
)

// ErrInterrupted is returned when the operator aborts a prompt with Ctrl+C.
var ErrInterrupted = errors.New("interrupted by operator")

// Operator is the human (or the policy standing in for one) that supplies the
// task and approves runs and retries.
type Operator interface {
	// ReadTask returns the natural language task to automate.
	ReadTask(ctx context.Context) (string, error)
	// ShowRoutine displays a routine under a heading.
	ShowRoutine(title string, r routine.Routine)
	ConfirmRun(ctx context.Context) (bool, error)
	// ConfirmRetry presents the failure and asks whether to regenerate.
	ConfirmRetry(ctx context.Context, ev *schemas.Evidence) (bool, error)
	// ReportFailure presents a failure that will not be offered for retry.
	ReportFailure(ev *schemas.Evidence)
	// Notify prints a one-line status message.
	Notify(msg string)
	// BeforeClose runs right before the browser is torn down.
	BeforeClose(ctx context.Context) error
}

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	codeColor    = color.New(color.FgWhite)
	failColor    = color.New(color.FgRed, color.Bold)
	detailColor  = color.New(color.FgYellow)
	noticeColor  = color.New(color.FgMagenta)
)

// printRoutine writes the listing shared by every operator.
func printRoutine(w io.Writer, title string, r routine.Routine) {
	headingColor.Fprintf(w, "\n=== %s ===\n", title)
	codeColor.Fprintln(w, r.Source)
	fmt.Fprintln(w)
}

// printFailure writes the evidence summary shown before a retry decision.
func printFailure(w io.Writer, ev *schemas.Evidence) {
	if ev == nil {
		return
	}
	failColor.Fprintf(w, "\nAttempt %d failed: %s\n", ev.Attempt, ev.Code)
	if ev.StatementIndex > 0 {
		detailColor.Fprintf(w, "  statement #%d: %s\n", ev.StatementIndex, ev.Statement)
	}
	detailColor.Fprintf(w, "  error: %s\n", ev.Error)
	if ev.PageURL != "" {
		detailColor.Fprintf(w, "  page: %s\n", ev.PageURL)
	}
	if ev.HasScreenshot() {
		detailColor.Fprintf(w, "  screenshot: %s\n", ev.ScreenshotPath)
	} else if ev.CaptureError != "" {
		detailColor.Fprintf(w, "  screenshot unavailable: %s\n", ev.CaptureError)
	}
}

// isYes accepts "y" and "yes" in any case; everything else is a no.
func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
