// internal/browser/manager_test.go
package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/browser/fakedriver"
	"github.com/xkilldash9x/webpilot/internal/config"
)

func newTestManager(t *testing.T, d *fakedriver.Driver) *browser.Manager {
	t.Helper()
	cfg := config.BrowserConfig{Driver: "fake", LaunchTimeout: time.Second}
	return browser.NewManager(d, cfg, zaptest.NewLogger(t))
}

func TestAcquireRelease_Order(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := fakedriver.New()
	m := newTestManager(t, d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s.Page())
	assert.NotEmpty(t, s.ID())

	require.NoError(t, s.Release(context.Background()))
	assert.Equal(t, []string{
		"browser.launch", "context.open", "page.open",
		"page.close", "context.close", "browser.close",
	}, d.Events())
}

func TestRelease_ExactlyOnce(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := fakedriver.New()
	m := newTestManager(t, d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.NoError(t, s.Release(context.Background()))
	}
	assert.Equal(t, 1, d.Count("page.close"))
	assert.Equal(t, 1, d.Count("context.close"))
	assert.Equal(t, 1, d.Count("browser.close"))
}

func TestAcquire_RollbackOnFailure(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		stage fakedriver.Stage
		want  []string
	}{
		{"launch fails", fakedriver.StageLaunch, nil},
		{"context fails", fakedriver.StageContext, []string{"browser.launch", "browser.close"}},
		{"page fails", fakedriver.StagePage, []string{"browser.launch", "context.open", "context.close", "browser.close"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			d := fakedriver.New()
			d.FailAt(tt.stage, boom)
			m := newTestManager(t, d)

			s, err := m.Acquire(context.Background())
			assert.Nil(t, s)
			require.Error(t, err)
			assert.ErrorIs(t, err, schemas.ErrResourceAcquisition)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.want, d.Events())

			// The slot must be free again after a failed acquisition.
			d.FailAt(tt.stage, nil)
			s, err = m.Acquire(context.Background())
			require.NoError(t, err)
			require.NoError(t, s.Release(context.Background()))
		})
	}
}

func TestAcquire_SingleLiveSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := fakedriver.New()
	m := newTestManager(t, d)

	first, err := m.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	second, err := m.Acquire(ctx)
	assert.Nil(t, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrResourceAcquisition)
	assert.Equal(t, 1, d.Count("browser.launch"), "no second browser may be launched while one is live")

	require.NoError(t, first.Release(context.Background()))

	third, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, third.Release(context.Background()))
}

// installingDriver needs a slow install before its first launch, and refuses
// to launch on an expired context like a real driver would.
type installingDriver struct {
	*fakedriver.Driver
	delay    time.Duration
	err      error
	installs int
}

func (d *installingDriver) Install(ctx context.Context) error {
	d.installs++
	select {
	case <-time.After(d.delay):
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *installingDriver) Launch(ctx context.Context) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Driver.Launch(ctx)
}

func TestAcquire_InstallIsNotBoundByLaunchTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := &installingDriver{Driver: fakedriver.New(), delay: 100 * time.Millisecond}
	cfg := config.BrowserConfig{Driver: "fake", LaunchTimeout: 20 * time.Millisecond}
	m := browser.NewManager(d, cfg, zaptest.NewLogger(t))

	s, err := m.Acquire(context.Background())
	require.NoError(t, err, "a download longer than the launch timeout must not fail the launch")
	assert.Equal(t, 1, d.installs)
	require.NoError(t, s.Release(context.Background()))
}

func TestAcquire_InstallFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := &installingDriver{Driver: fakedriver.New(), err: errors.New("download refused")}
	m := browser.NewManager(d, config.BrowserConfig{Driver: "fake", LaunchTimeout: time.Second}, zaptest.NewLogger(t))

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrResourceAcquisition)
	assert.Contains(t, err.Error(), "download refused")
	assert.Zero(t, d.Count("browser.launch"))

	// The slot was returned, so a later attempt can proceed.
	d.err = nil
	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Release(context.Background()))
}

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	type key struct{}
	primary := context.WithValue(context.Background(), key{}, "cdp-target")

	t.Run("operational cancel propagates", func(t *testing.T) {
		op, opCancel := context.WithCancel(context.Background())
		combined, cancel := browser.CombineContext(primary, op)
		defer cancel()

		assert.Equal(t, "cdp-target", combined.Value(key{}))
		opCancel()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled")
		}
	})

	t.Run("operational deadline is visible", func(t *testing.T) {
		op, opCancel := context.WithTimeout(context.Background(), time.Hour)
		defer opCancel()
		combined, cancel := browser.CombineContext(primary, op)
		defer cancel()

		_, ok := combined.Deadline()
		assert.True(t, ok)
	})
}

func TestDetach(t *testing.T) {
	type key struct{}
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, 1))
	cancel()

	detached := browser.Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	assert.Equal(t, 1, detached.Value(key{}))
}
