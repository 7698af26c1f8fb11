// File: internal/service/components.go
package service

import (
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/evidence"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/operator"
	"github.com/xkilldash9x/webpilot/internal/orchestrator"
)

// Components holds everything a run needs and owns their teardown. Browser
// sessions are not listed: the runner releases each one it acquires.
type Components struct {
	RunID     string
	LLMClient schemas.LLMClient
	Sessions  *browser.Manager
	Evidence  *evidence.Store
	Operator  operator.Operator
	Runner    *orchestrator.Runner
}

// Shutdown closes the components that hold external resources. It tolerates
// partially initialized Components.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if closer, ok := c.Operator.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Debug("Error closing operator.", zap.Error(err))
		}
	}

	if c.LLMClient != nil {
		if err := c.LLMClient.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}

	logger.Debug("Components shut down.")
}
