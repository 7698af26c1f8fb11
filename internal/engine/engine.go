// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/routine"
)

// captureTimeout bounds the URL lookup and screenshot taken after a failure.
const captureTimeout = 10 * time.Second

// EvidenceSink persists what the engine captures. *evidence.Store satisfies it.
type EvidenceSink interface {
	Save(ev *schemas.Evidence) error
	WriteArtifact(name string, data []byte) (string, error)
}

// handlerFunc performs one compiled statement against a page.
type handlerFunc func(ctx context.Context, page browser.Page, st routine.Statement) error

// Engine runs routines inside a browser session. Nothing a routine does can
// escape the Page capabilities; every fault becomes a Failure outcome.
type Engine struct {
	cfg      config.ExecutionConfig
	sink     EvidenceSink
	runID    string
	logger   *zap.Logger
	handlers map[routine.Op]handlerFunc
}

// New creates an engine for one run.
func New(cfg config.ExecutionConfig, sink EvidenceSink, runID string, logger *zap.Logger) (*Engine, error) {
	if sink == nil {
		return nil, errors.New("evidence sink cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	e := &Engine{
		cfg:    cfg,
		sink:   sink,
		runID:  runID,
		logger: logger.Named("engine").With(zap.String("run_id", runID)),
	}
	e.handlers = map[routine.Op]handlerFunc{
		routine.OpGoto:            e.handleGoto,
		routine.OpFill:            e.handleFill,
		routine.OpClick:           e.handleClick,
		routine.OpWait:            e.handleWait,
		routine.OpWaitForSelector: e.handleWaitForSelector,
		routine.OpPress:           e.handlePress,
		routine.OpScreenshot:      e.handleScreenshot,
	}
	return e, nil
}

// Run compiles r and executes it statement by statement on the session's
// page. It never returns an error: compile errors, page errors, timeouts and
// panics all come back as a Failure outcome carrying evidence.
func (e *Engine) Run(ctx context.Context, sess *browser.Session, r routine.Routine, attempt int) (out schemas.Outcome) {
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	logger := e.logger.With(zap.Int("attempt", attempt), zap.String("session_id", sess.ID()))
	page := sess.Page()

	prog, err := compile(r)
	if err != nil {
		var ce *routine.CompileError
		var pe *PanicError
		switch {
		case errors.As(err, &ce):
			return e.fail(ctx, logger, page, attempt, &ce.Statement, ce.Code, err)
		case errors.As(err, &pe):
			return e.fail(ctx, logger, page, attempt, nil, schemas.ErrCodeExecutorPanic, err)
		}
		return e.fail(ctx, logger, page, attempt, nil, schemas.ErrCodeSyntaxError, err)
	}

	routineCtx := ctx
	if e.cfg.RoutineTimeout > 0 {
		var cancel context.CancelFunc
		routineCtx, cancel = context.WithTimeout(ctx, e.cfg.RoutineTimeout)
		defer cancel()
	}

	logger.Info("Executing routine.", zap.Int("statements", len(prog.Statements)))
	for i := range prog.Statements {
		st := prog.Statements[i]
		if err := e.step(routineCtx, page, st); err != nil {
			return e.fail(ctx, logger, page, attempt, &st, classify(st.Op, err), err)
		}
		logger.Debug("Statement done.", zap.Int("index", st.Index), zap.String("op", string(st.Op)))
	}

	logger.Info("Routine completed.", zap.Duration("elapsed", time.Since(start)))
	return schemas.Outcome{Status: schemas.OutcomeSuccess}
}

var compileRoutine = routine.Compile

// compile turns a panic in the compiler into an error, like step does for
// statements.
func compile(r routine.Routine) (prog *routine.Program, err error) {
	defer func() {
		if v := recover(); v != nil {
			prog, err = nil, &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return compileRoutine(r)
}

// step runs one statement under its own timeout and turns a panic into an error.
func (e *Engine) step(ctx context.Context, page browser.Page, st routine.Statement) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	handler, ok := e.handlers[st.Op]
	if !ok {
		return fmt.Errorf("no handler for operation %q", st.Op)
	}

	actionCtx := ctx
	if e.cfg.ActionTimeout > 0 {
		var cancel context.CancelFunc
		// An explicit wait gets its own duration on top of the action budget.
		actionCtx, cancel = context.WithTimeout(ctx, e.cfg.ActionTimeout+st.Wait)
		defer cancel()
	}
	return handler(actionCtx, page, st)
}

// fail captures evidence and builds the Failure outcome. Capture problems are
// logged and recorded in the evidence; they never change the outcome.
func (e *Engine) fail(ctx context.Context, logger *zap.Logger, page browser.Page, attempt int, st *routine.Statement, code schemas.ErrorCode, cause error) schemas.Outcome {
	ev := &schemas.Evidence{
		RunID:      e.runID,
		Attempt:    attempt,
		Code:       code,
		Error:      cause.Error(),
		CapturedAt: time.Now(),
	}
	stepErr := &StepError{Code: code, Err: cause}
	if st != nil {
		ev.StatementIndex = st.Index
		ev.Statement = st.Text
		stepErr.Statement = *st
	}

	fields := []zap.Field{
		zap.String("error_code", string(code)),
		zap.Int("statement_index", ev.StatementIndex),
		zap.Error(cause),
	}
	var pe *PanicError
	if errors.As(cause, &pe) {
		fields = append(fields, zap.ByteString("stack", pe.Stack))
	}
	logger.Warn("Routine failed.", fields...)

	if ctx.Err() != nil {
		// The run is being torn down; talking to the browser now only delays that.
		ev.CaptureError = "skipped: " + ctx.Err().Error()
	} else {
		e.capture(ctx, logger, page, ev)
	}

	if err := e.sink.Save(ev); err != nil {
		logger.Warn("Failed to persist evidence.", zap.Error(err))
	}
	return schemas.Outcome{Status: schemas.OutcomeFailure, Evidence: ev, Err: stepErr}
}

func (e *Engine) capture(ctx context.Context, logger *zap.Logger, page browser.Page, ev *schemas.Evidence) {
	captureCtx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	if u, err := page.URL(captureCtx); err == nil {
		ev.PageURL = u
	}

	shot, err := page.Screenshot(captureCtx)
	if err != nil {
		ev.CaptureError = err.Error()
		logger.Warn("Evidence capture failed.", zap.Error(fmt.Errorf("%w: %w", schemas.ErrEvidenceCapture, err)))
		return
	}
	ev.Screenshot = shot
}

func (e *Engine) handleGoto(ctx context.Context, page browser.Page, st routine.Statement) error {
	return page.Navigate(ctx, st.Target)
}

func (e *Engine) handleFill(ctx context.Context, page browser.Page, st routine.Statement) error {
	return page.Fill(ctx, st.Target, st.Value)
}

func (e *Engine) handleClick(ctx context.Context, page browser.Page, st routine.Statement) error {
	return page.Click(ctx, st.Target)
}

func (e *Engine) handleWait(ctx context.Context, page browser.Page, st routine.Statement) error {
	return page.Sleep(ctx, st.Wait)
}

func (e *Engine) handleWaitForSelector(ctx context.Context, page browser.Page, st routine.Statement) error {
	return page.WaitVisible(ctx, st.Target)
}

func (e *Engine) handlePress(ctx context.Context, page browser.Page, st routine.Statement) error {
	return page.Press(ctx, st.Target, st.Value)
}

func (e *Engine) handleScreenshot(ctx context.Context, page browser.Page, st routine.Statement) error {
	data, err := page.Screenshot(ctx)
	if err != nil {
		return err
	}
	path, err := e.sink.WriteArtifact(st.Target, data)
	if err != nil {
		return fmt.Errorf("saving screenshot: %w", err)
	}
	e.logger.Info("Routine screenshot saved.", zap.String("path", path))
	return nil
}
