// internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/browser/fakedriver"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/evidence"
	"github.com/xkilldash9x/webpilot/internal/routine"
)

type fixture struct {
	driver *fakedriver.Driver
	sess   *browser.Session
	engine *Engine
	dir    string
}

func setup(t *testing.T, logger *zap.Logger, exec config.ExecutionConfig) *fixture {
	t.Helper()
	d := fakedriver.New()
	d.Elements = map[string]bool{"#q": true, "#go": true, "#boom": true, "#slow": true}
	d.PanicOn = "#boom"
	d.BlockOn = "#slow"

	mgr := browser.NewManager(d, config.BrowserConfig{LaunchTimeout: time.Second}, logger)
	sess, err := mgr.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Release(context.Background()) })

	dir := t.TempDir()
	store := evidence.NewStore(config.EvidenceConfig{Dir: dir, PerAttempt: true}, "run-x", logger)
	eng, err := New(exec, store, "run-x", logger)
	require.NoError(t, err)
	return &fixture{driver: d, sess: sess, engine: eng, dir: filepath.Join(dir, "run-x")}
}

func defaultExec() config.ExecutionConfig {
	return config.ExecutionConfig{ActionTimeout: 2 * time.Second, RoutineTimeout: 10 * time.Second}
}

func src(lines ...string) routine.Routine {
	out := routine.Header
	for _, l := range lines {
		out += "\n    " + l
	}
	return routine.Routine{Source: out}
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(defaultExec(), nil, "r", zaptest.NewLogger(t))
	assert.Error(t, err)
	store := evidence.NewStore(config.EvidenceConfig{Dir: t.TempDir()}, "r", zaptest.NewLogger(t))
	_, err = New(defaultExec(), store, "r", nil)
	assert.Error(t, err)
}

func TestRun_Success(t *testing.T) {
	f := setup(t, zaptest.NewLogger(t), defaultExec())

	out := f.engine.Run(context.Background(), f.sess, src(
		`page.goto("https://example.com")`,
		`# comment`,
		`page.fill("#q", "golang")`,
		`page.press("#q", "Enter")`,
		`page.wait(5)`,
		`page.click("#go")`,
	), 1)

	require.True(t, out.Succeeded(), "unexpected failure: %v", out.Err)
	assert.Nil(t, out.Evidence)
	assert.NoError(t, out.Err)
	assert.Equal(t, 1, f.driver.Count("navigate https://example.com"))
	assert.Equal(t, 1, f.driver.Count("fill #q=golang"))
	assert.Equal(t, 1, f.driver.Count("press #q Enter"))
	assert.Equal(t, 1, f.driver.Count("click #go"))
	assert.Equal(t, 0, f.driver.Count("screenshot"))
	assert.NoDirExists(t, f.dir, "a successful run leaves no evidence")
}

func TestRun_MissingElement(t *testing.T) {
	f := setup(t, zaptest.NewLogger(t), defaultExec())

	out := f.engine.Run(context.Background(), f.sess, src(
		`page.goto("https://example.com")`,
		`page.click("#missing")`,
		`page.click("#go")`,
	), 3)

	require.Equal(t, schemas.OutcomeFailure, out.Status)
	require.NotNil(t, out.Evidence)
	assert.ErrorIs(t, out.Err, schemas.ErrExecution)
	assert.ErrorIs(t, out.Err, fakedriver.ErrNoSuchElement)

	ev := out.Evidence
	assert.Equal(t, schemas.ErrCodeElementNotFound, ev.Code)
	assert.Equal(t, 2, ev.StatementIndex)
	assert.Equal(t, `page.click("#missing")`, ev.Statement)
	assert.Equal(t, 3, ev.Attempt)
	assert.Equal(t, "https://example.com", ev.PageURL)
	assert.Equal(t, filepath.Join(f.dir, "attempt-3.png"), ev.ScreenshotPath)
	assert.FileExists(t, ev.ScreenshotPath)
	assert.FileExists(t, filepath.Join(f.dir, "attempt-3.json"))
	assert.Equal(t, fakedriver.PNG, ev.Screenshot)
	assert.Equal(t, 0, f.driver.Count("click #go"), "execution stops at the first failure")
}

func TestRun_PanicIsContained(t *testing.T) {
	f := setup(t, zaptest.NewLogger(t), defaultExec())

	var out schemas.Outcome
	require.NotPanics(t, func() {
		out = f.engine.Run(context.Background(), f.sess, src(`page.click("#boom")`), 1)
	})

	require.Equal(t, schemas.OutcomeFailure, out.Status)
	assert.Equal(t, schemas.ErrCodeExecutorPanic, out.Evidence.Code)
	var pe *PanicError
	require.ErrorAs(t, out.Err, &pe)
	assert.NotEmpty(t, pe.Stack)

	// The session survives a contained panic.
	require.NoError(t, f.sess.Release(context.Background()))
}

func TestRun_CompilerPanicIsContained(t *testing.T) {
	orig := compileRoutine
	t.Cleanup(func() { compileRoutine = orig })
	compileRoutine = func(routine.Routine) (*routine.Program, error) {
		panic("index out of range")
	}

	f := setup(t, zaptest.NewLogger(t), defaultExec())
	var out schemas.Outcome
	require.NotPanics(t, func() {
		out = f.engine.Run(context.Background(), f.sess, src(`page.click("#go")`), 1)
	})

	require.Equal(t, schemas.OutcomeFailure, out.Status)
	assert.Equal(t, schemas.ErrCodeExecutorPanic, out.Evidence.Code)
	assert.Zero(t, out.Evidence.StatementIndex)
	assert.ErrorIs(t, out.Err, schemas.ErrExecution)
	var pe *PanicError
	require.ErrorAs(t, out.Err, &pe)
	assert.Equal(t, "index out of range", pe.Value)
	assert.Zero(t, f.driver.Count("click #go"), "nothing runs after a compiler panic")
}

func TestRun_ActionTimeout(t *testing.T) {
	exec := config.ExecutionConfig{ActionTimeout: 50 * time.Millisecond, RoutineTimeout: 10 * time.Second}
	f := setup(t, zaptest.NewLogger(t), exec)

	start := time.Now()
	out := f.engine.Run(context.Background(), f.sess, src(`page.wait_for_selector("#slow")`), 1)

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, schemas.OutcomeFailure, out.Status)
	assert.Equal(t, schemas.ErrCodeTimeoutError, out.Evidence.Code)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.True(t, out.Evidence.HasScreenshot(), "the page is still alive after an action timeout")
}

func TestRun_RoutineTimeout(t *testing.T) {
	exec := config.ExecutionConfig{ActionTimeout: 10 * time.Second, RoutineTimeout: 50 * time.Millisecond}
	f := setup(t, zaptest.NewLogger(t), exec)

	out := f.engine.Run(context.Background(), f.sess, src(`page.wait(200)`, `page.wait(200)`), 1)

	require.Equal(t, schemas.OutcomeFailure, out.Status)
	assert.Equal(t, schemas.ErrCodeTimeoutError, out.Evidence.Code)
	assert.Equal(t, 1, out.Evidence.StatementIndex)
}

func TestRun_CompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		r     routine.Routine
		code  schemas.ErrorCode
		index int
	}{
		{"unknown op", src(`page.goto("https://a.test")`, `page.evaluate("alert(1)")`), schemas.ErrCodeUnknownAction, 2},
		{"bad args", src(`page.fill("#q")`), schemas.ErrCodeInvalidParameters, 1},
		{"not a statement", src(`import os`), schemas.ErrCodeSyntaxError, 1},
		{"no header", routine.Routine{Source: `page.click("#go")`}, schemas.ErrCodeSyntaxError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, zaptest.NewLogger(t), defaultExec())
			out := f.engine.Run(context.Background(), f.sess, tt.r, 1)

			require.Equal(t, schemas.OutcomeFailure, out.Status)
			assert.Equal(t, tt.code, out.Evidence.Code)
			assert.Equal(t, tt.index, out.Evidence.StatementIndex)
			assert.ErrorIs(t, out.Err, schemas.ErrExecution)
			assert.Equal(t, 0, f.driver.Count("navigate https://a.test"), "nothing runs when compilation fails")
		})
	}
}

func TestRun_CaptureFailureKeepsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := setup(t, zap.New(core), defaultExec())
	f.driver.FailAt(fakedriver.StageScreenshot, errors.New("target crashed"))

	out := f.engine.Run(context.Background(), f.sess, src(`page.click("#missing")`), 2)

	require.Equal(t, schemas.OutcomeFailure, out.Status)
	require.NotNil(t, out.Evidence, "evidence is present even without a screenshot")
	assert.Empty(t, out.Evidence.ScreenshotPath)
	assert.Equal(t, "target crashed", out.Evidence.CaptureError)
	assert.Equal(t, schemas.ErrCodeElementNotFound, out.Evidence.Code)

	captureLogs := logs.FilterMessage("Evidence capture failed.").All()
	require.Len(t, captureLogs, 1)
	assert.Contains(t, captureLogs[0].ContextMap()["error"], schemas.ErrEvidenceCapture.Error())
}

func TestRun_CancelledSkipsCapture(t *testing.T) {
	f := setup(t, zaptest.NewLogger(t), defaultExec())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.engine.Run(ctx, f.sess, src(`page.click("#go")`), 1)

	require.Equal(t, schemas.OutcomeFailure, out.Status)
	assert.Equal(t, schemas.ErrCodeCancelled, out.Evidence.Code)
	assert.Contains(t, out.Evidence.CaptureError, "skipped")
	assert.Equal(t, 0, f.driver.Count("screenshot"))
}

func TestRun_RoutineScreenshot(t *testing.T) {
	f := setup(t, zaptest.NewLogger(t), defaultExec())

	out := f.engine.Run(context.Background(), f.sess, src(`page.screenshot("result.png")`), 1)

	require.True(t, out.Succeeded(), "unexpected failure: %v", out.Err)
	data, err := os.ReadFile(filepath.Join(f.dir, "result.png"))
	require.NoError(t, err)
	assert.Equal(t, fakedriver.PNG, data)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		op   routine.Op
		err  error
		want schemas.ErrorCode
	}{
		{routine.OpClick, &PanicError{Value: "x"}, schemas.ErrCodeExecutorPanic},
		{routine.OpClick, context.Canceled, schemas.ErrCodeCancelled},
		{routine.OpClick, fakedriver.ErrNoSuchElement, schemas.ErrCodeElementNotFound},
		{routine.OpFill, errors.New("cannot find element: #q"), schemas.ErrCodeElementNotFound},
		{routine.OpGoto, errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), schemas.ErrCodeNavigationError},
		{routine.OpGoto, errors.New("bad scheme"), schemas.ErrCodeNavigationError},
		{routine.OpClick, context.DeadlineExceeded, schemas.ErrCodeTimeoutError},
		{routine.OpPress, errors.New("Timeout 30000ms exceeded"), schemas.ErrCodeTimeoutError},
		{routine.OpClick, errors.New("boom"), schemas.ErrCodeExecutionFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.op, tt.err), "%s: %v", tt.op, tt.err)
	}
}
