// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is a live browser, context and page triple. It is released exactly
// once; later Release calls return the first result.
type Session struct {
	id      string
	browser Browser
	context Context
	page    Page
	logger  *zap.Logger

	releaseOnce sync.Once
	releaseErr  error
	onRelease   func()
}

func newSession(b Browser, c Context, p Page, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		browser: b,
		context: c,
		page:    p,
		logger:  logger.With(zap.String("session_id", id)),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Page returns the capability surface of the session.
func (s *Session) Page() Page { return s.page }

// Release closes the page, the context and the browser in that order. Every
// stage is attempted even if an earlier one fails; the errors are joined.
func (s *Session) Release(ctx context.Context) error {
	s.releaseOnce.Do(func() {
		s.logger.Debug("Releasing browser session.")
		var errs []error
		if err := s.page.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		if err := s.context.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
		if err := s.browser.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.releaseErr = errors.Join(errs...)
		if s.releaseErr != nil {
			s.logger.Warn("Browser session released with errors.", zap.Error(s.releaseErr))
		} else {
			s.logger.Info("Browser session released.")
		}
		if s.onRelease != nil {
			s.onRelease()
		}
	})
	return s.releaseErr
}
