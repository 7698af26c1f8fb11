// internal/operator/policy.go
package operator

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/routine"
)

// ErrNoTask is returned by a Policy that was not given a task.
var ErrNoTask = errors.New("no task given and no operator to ask")

// Policy answers every prompt from configuration, for unattended runs.
type Policy struct {
	task               string
	autoApproveRetries bool
	out                io.Writer
}

var _ Operator = (*Policy)(nil)

// NewPolicy creates a non-interactive operator. Runs are always confirmed;
// retries only when autoApproveRetries is set. Output goes to out.
func NewPolicy(task string, autoApproveRetries bool, out io.Writer) *Policy {
	if out == nil {
		out = io.Discard
	}
	return &Policy{task: strings.TrimSpace(task), autoApproveRetries: autoApproveRetries, out: out}
}

func (p *Policy) ReadTask(ctx context.Context) (string, error) {
	if p.task == "" {
		return "", ErrNoTask
	}
	return p.task, nil
}

func (p *Policy) ShowRoutine(title string, r routine.Routine) {
	printRoutine(p.out, title, r)
}

func (p *Policy) ConfirmRun(ctx context.Context) (bool, error) {
	return true, ctx.Err()
}

func (p *Policy) ConfirmRetry(ctx context.Context, ev *schemas.Evidence) (bool, error) {
	printFailure(p.out, ev)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.autoApproveRetries, nil
}

func (p *Policy) ReportFailure(ev *schemas.Evidence) {
	printFailure(p.out, ev)
}

func (p *Policy) Notify(msg string) {
	noticeColor.Fprintln(p.out, msg)
}

func (p *Policy) BeforeClose(ctx context.Context) error { return nil }
