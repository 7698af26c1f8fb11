// internal/evidence/store.go
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// FixedScreenshotName is used for every failure when per-attempt naming is off.
const FixedScreenshotName = "error_screenshot.png"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists failure screenshots, their JSON sidecars and screenshots
// requested by routines. All files land under one run directory.
type Store struct {
	dir        string
	perAttempt bool
	logger     *zap.Logger
}

// NewStore creates a store for one run. With per-attempt naming the run gets
// its own sub-directory named after runID.
func NewStore(cfg config.EvidenceConfig, runID string, logger *zap.Logger) *Store {
	dir := cfg.Dir
	if cfg.PerAttempt {
		dir = filepath.Join(cfg.Dir, runID)
	}
	return &Store{
		dir:        dir,
		perAttempt: cfg.PerAttempt,
		logger:     logger.Named("evidence").With(zap.String("run_id", runID)),
	}
}

// Dir returns the directory this run writes into.
func (s *Store) Dir() string { return s.dir }

// ScreenshotPath returns where the failure screenshot of attempt goes.
func (s *Store) ScreenshotPath(attempt int) string {
	if !s.perAttempt {
		return filepath.Join(s.dir, FixedScreenshotName)
	}
	return filepath.Join(s.dir, fmt.Sprintf("attempt-%d.png", attempt))
}

func (s *Store) sidecarPath(attempt int) string {
	return filepath.Join(s.dir, fmt.Sprintf("attempt-%d.json", attempt))
}

// Save writes ev.Screenshot (when present) and records its path in ev. In
// per-attempt mode a JSON sidecar with the failure details is written too.
// A screenshot that cannot be written leaves ScreenshotPath empty and the
// returned error wraps schemas.ErrEvidenceCapture.
func (s *Store) Save(ev *schemas.Evidence) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating evidence dir: %w", schemas.ErrEvidenceCapture, err)
	}

	var shotErr error
	if len(ev.Screenshot) > 0 {
		path := s.ScreenshotPath(ev.Attempt)
		if err := os.WriteFile(path, ev.Screenshot, 0o644); err != nil {
			shotErr = fmt.Errorf("%w: writing screenshot: %w", schemas.ErrEvidenceCapture, err)
			ev.CaptureError = err.Error()
		} else {
			ev.ScreenshotPath = path
		}
	}

	if s.perAttempt {
		data, err := json.MarshalIndent(ev, "", "  ")
		if err == nil {
			err = os.WriteFile(s.sidecarPath(ev.Attempt), data, 0o644)
		}
		if err != nil {
			// The sidecar is a convenience; losing it does not lose the screenshot.
			s.logger.Warn("Failed to write evidence sidecar.", zap.Int("attempt", ev.Attempt), zap.Error(err))
		}
	}

	if shotErr == nil {
		s.logger.Info("Evidence saved.",
			zap.Int("attempt", ev.Attempt),
			zap.String("screenshot", ev.ScreenshotPath),
		)
	}
	return shotErr
}

// ArtifactPath resolves a routine-requested file name inside the run
// directory. Only plain base names are accepted.
func (s *Store) ArtifactPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// WriteArtifact stores data under name in the run directory.
func (s *Store) WriteArtifact(name string, data []byte) (string, error) {
	path, err := s.ArtifactPath(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
