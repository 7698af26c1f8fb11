// File: internal/orchestrator/orchestrator.go
// Description: Drives one task from translation to teardown. Components are
// injected through interfaces so the loop runs the same against real drivers
// and fakes.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/operator"
	"github.com/xkilldash9x/webpilot/internal/routine"
)

// releaseTimeout bounds session teardown, which runs even after cancellation.
const releaseTimeout = 30 * time.Second

// Routine listing headings.
const (
	TitleGenerated = "Generated Routine"
	TitleRetry     = "Retrying with Updated Routine"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	// StatusAborted means the routine failed and no retry followed.
	StatusAborted Status = "aborted"
	// StatusCancelled covers declining to run and signals.
	StatusCancelled Status = "cancelled"
)

// Result summarizes a finished run.
type Result struct {
	RunID        string
	Status       Status
	Attempts     int
	Retries      int
	LastEvidence *schemas.Evidence
}

// SessionProvider hands out browser sessions. *browser.Manager satisfies it.
type SessionProvider interface {
	Acquire(ctx context.Context) (*browser.Session, error)
}

// Executor runs one routine in a session. *engine.Engine satisfies it.
type Executor interface {
	Run(ctx context.Context, sess *browser.Session, r routine.Routine, attempt int) schemas.Outcome
}

// Decider chooses between retry and abort after a failure. *agent.Controller
// satisfies it.
type Decider interface {
	Decide(ctx context.Context, out schemas.Outcome, task string, retriesUsed int) (schemas.Decision, error)
}

// Deps are the components a Runner drives.
type Deps struct {
	Translator agent.Translator
	Normalizer agent.Normalizer
	Sessions   SessionProvider
	Executor   Executor
	Decider    Decider
	Operator   operator.Operator
}

// Options tune the loop.
type Options struct {
	// FreshSessionPerAttempt releases the browser between attempts.
	FreshSessionPerAttempt bool
	// PauseBeforeClose asks the operator to confirm before the final teardown.
	PauseBeforeClose bool
}

// Runner is the task loop.
type Runner struct {
	deps   Deps
	opts   Options
	runID  string
	logger *zap.Logger
}

// New creates a Runner for a single run.
func New(deps Deps, opts Options, runID string, logger *zap.Logger) (*Runner, error) {
	if deps.Translator == nil ||
		deps.Normalizer == nil ||
		deps.Sessions == nil ||
		deps.Executor == nil ||
		deps.Decider == nil ||
		deps.Operator == nil {
		return nil, errors.New("cannot initialize runner with nil dependencies")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Runner{
		deps:   deps,
		opts:   opts,
		runID:  runID,
		logger: logger.Named("orchestrator").With(zap.String("run_id", runID)),
	}, nil
}

// Run executes task until it succeeds, the operator stops retrying, the retry
// budget runs out or ctx is canceled. An empty task is read from the operator.
// Every acquired session is released exactly once before Run returns.
//
// The error is non-nil only for faults that stop the loop itself: translation,
// normalization, operator I/O and session acquisition.
func (r *Runner) Run(ctx context.Context, task string) (res Result, err error) {
	res = Result{RunID: r.runID}
	op := r.deps.Operator

	if strings.TrimSpace(task) == "" {
		if task, err = op.ReadTask(ctx); err != nil {
			return r.stop(ctx, res, err)
		}
	}
	r.logger.Info("Run started.", zap.String("task", task))

	current, err := r.generate(ctx, task)
	if err != nil {
		return r.stop(ctx, res, err)
	}
	op.ShowRoutine(TitleGenerated, current)

	ok, err := op.ConfirmRun(ctx)
	if err != nil {
		return r.stop(ctx, res, err)
	}
	if !ok {
		op.Notify("Cancelled.")
		res.Status = StatusCancelled
		return res, nil
	}

	var sess *browser.Session
	defer func() {
		if sess != nil {
			r.teardown(ctx, sess, r.opts.PauseBeforeClose)
		}
	}()

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			return res, nil
		}
		if sess == nil {
			if sess, err = r.deps.Sessions.Acquire(ctx); err != nil {
				sess = nil
				return r.stop(ctx, res, err)
			}
		}

		res.Attempts = attempt
		out := r.deps.Executor.Run(ctx, sess, current, attempt)
		if out.Succeeded() {
			r.logger.Info("Routine succeeded.", zap.Int("attempt", attempt), zap.Duration("duration", out.Duration))
			op.Notify("Routine completed successfully.")
			res.Status = StatusSucceeded
			return res, nil
		}
		res.LastEvidence = out.Evidence
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			return res, nil
		}

		decision, err := r.deps.Decider.Decide(ctx, out, task, res.Retries)
		if err != nil {
			return r.stop(ctx, res, err)
		}
		if decision.Kind == schemas.DecisionAbort {
			r.logger.Info("Run aborted.", zap.String("reason", decision.Reason), zap.Int("attempts", attempt))
			res.Status = StatusAborted
			return res, nil
		}

		res.Retries++
		current = routine.Routine{Source: decision.Source}
		op.ShowRoutine(TitleRetry, current)

		if r.opts.FreshSessionPerAttempt {
			r.teardown(ctx, sess, false)
			sess = nil
		}
	}
}

func (r *Runner) generate(ctx context.Context, task string) (routine.Routine, error) {
	raw, err := r.deps.Translator.Translate(ctx, task, nil)
	if err != nil {
		return routine.Routine{}, err
	}
	return r.deps.Normalizer.Normalize(raw)
}

// stop ends the run on err, reporting cancellation as a status rather than
// an error.
func (r *Runner) stop(ctx context.Context, res Result, err error) (Result, error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, operator.ErrInterrupted) {
		r.logger.Info("Run cancelled.", zap.Error(err))
		res.Status = StatusCancelled
		return res, nil
	}
	res.Status = StatusAborted
	return res, fmt.Errorf("run %s: %w", r.runID, err)
}

// teardown releases sess, optionally waiting for the operator first. It uses
// a context detached from ctx so cancellation does not skip cleanup.
func (r *Runner) teardown(ctx context.Context, sess *browser.Session, pause bool) {
	if pause && ctx.Err() == nil {
		if err := r.deps.Operator.BeforeClose(ctx); err != nil {
			r.logger.Warn("Close prompt failed.", zap.Error(err))
		}
	}
	releaseCtx, cancel := context.WithTimeout(browser.Detach(ctx), releaseTimeout)
	defer cancel()
	if err := sess.Release(releaseCtx); err != nil {
		r.logger.Warn("Session release reported errors.", zap.Error(err))
	}
}
