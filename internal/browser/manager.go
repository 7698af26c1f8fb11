// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// rollbackTimeout bounds cleanup of a half-built session.
const rollbackTimeout = 15 * time.Second

// Manager hands out browser sessions, one at a time.
type Manager struct {
	driver Driver
	cfg    config.BrowserConfig
	logger *zap.Logger
	// slots holds a single permit; a live session owns it until Release.
	slots *semaphore.Weighted
}

// NewManager creates a session manager on top of driver.
func NewManager(driver Driver, cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		driver: driver,
		cfg:    cfg,
		logger: logger.Named("browser_manager").With(zap.String("driver", driver.Name())),
		slots:  semaphore.NewWeighted(1),
	}
}

// Acquire launches a browser, opens an isolated context and a page in it. It
// blocks while another session from this manager is still live. If any stage
// fails, the stages already acquired are closed in reverse order and the
// error wraps schemas.ErrResourceAcquisition.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	if err := m.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for a free session slot: %w", schemas.ErrResourceAcquisition, err)
	}

	var (
		browser Browser
		bctx    Context
		page    Page
		acqErr  error
	)
	// Roll back whatever was acquired if a later stage fails.
	defer func() {
		if acqErr == nil {
			return
		}
		m.logger.Warn("Session acquisition failed, rolling back.", zap.Error(acqErr))
		cleanupCtx, cancel := context.WithTimeout(Detach(ctx), rollbackTimeout)
		defer cancel()
		if bctx != nil {
			if err := bctx.Close(cleanupCtx); err != nil {
				m.logger.Warn("Failed to close browser context during rollback.", zap.Error(err))
			}
		}
		if browser != nil {
			if err := browser.Close(cleanupCtx); err != nil {
				m.logger.Warn("Failed to close browser during rollback.", zap.Error(err))
			}
		}
		m.slots.Release(1)
	}()

	if inst, ok := m.driver.(Installer); ok {
		if acqErr = inst.Install(ctx); acqErr != nil {
			acqErr = fmt.Errorf("%w: install browser: %w", schemas.ErrResourceAcquisition, acqErr)
			return nil, acqErr
		}
	}

	// The launch timeout covers launch, context and page, not installation.
	launchCtx := ctx
	if m.cfg.LaunchTimeout > 0 {
		var cancel context.CancelFunc
		launchCtx, cancel = context.WithTimeout(ctx, m.cfg.LaunchTimeout)
		defer cancel()
	}

	m.logger.Debug("Launching browser.")
	browser, acqErr = m.driver.Launch(launchCtx)
	if acqErr != nil {
		browser = nil
		acqErr = fmt.Errorf("%w: launch browser: %w", schemas.ErrResourceAcquisition, acqErr)
		return nil, acqErr
	}

	bctx, acqErr = browser.NewContext(launchCtx)
	if acqErr != nil {
		bctx = nil
		acqErr = fmt.Errorf("%w: create browser context: %w", schemas.ErrResourceAcquisition, acqErr)
		return nil, acqErr
	}

	page, acqErr = bctx.NewPage(launchCtx)
	if acqErr != nil {
		acqErr = fmt.Errorf("%w: open page: %w", schemas.ErrResourceAcquisition, acqErr)
		return nil, acqErr
	}

	s := newSession(browser, bctx, page, m.logger)
	s.onRelease = func() { m.slots.Release(1) }
	m.logger.Info("Browser session acquired.", zap.String("session_id", s.ID()))
	return s, nil
}
