// internal/agent/controller.go
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/operator"
	"github.com/xkilldash9x/webpilot/internal/routine"
)

// Translator produces raw routine text for a task, optionally correcting a
// previous failure.
type Translator interface {
	Translate(ctx context.Context, task string, ev *schemas.Evidence) (string, error)
}

// Normalizer turns raw routine text into a runnable Routine.
type Normalizer interface {
	Normalize(raw string) (routine.Routine, error)
}

// Decision reasons.
const (
	ReasonRetryLimit = "retry limit reached"
	ReasonDeclined   = "declined by operator"
	ReasonApproved   = "approved by operator"
)

// Controller decides what happens after a failed attempt.
type Controller struct {
	translator Translator
	normalizer Normalizer
	operator   operator.Operator
	maxRetries int
	logger     *zap.Logger
}

// NewController creates a retry controller.
func NewController(t Translator, n Normalizer, op operator.Operator, cfg config.RetryConfig, logger *zap.Logger) *Controller {
	return &Controller{
		translator: t,
		normalizer: n,
		operator:   op,
		maxRetries: cfg.MaxRetries,
		logger:     logger.Named("retry_controller"),
	}
}

// Decide returns Abort when the retry budget is spent or the operator
// declines. Otherwise it regenerates the routine from the unchanged task plus
// the failure's evidence and returns Retry with the normalized source.
// Translation and normalization errors are returned to the caller.
func (c *Controller) Decide(ctx context.Context, out schemas.Outcome, task string, retriesUsed int) (schemas.Decision, error) {
	if out.Succeeded() {
		return schemas.Decision{}, errors.New("no decision needed for a successful outcome")
	}

	if retriesUsed >= c.maxRetries {
		c.logger.Info("Retry budget exhausted.", zap.Int("retries_used", retriesUsed), zap.Int("max_retries", c.maxRetries))
		c.operator.ReportFailure(out.Evidence)
		c.operator.Notify(fmt.Sprintf("Retry limit reached (%d of %d used). Giving up.", retriesUsed, c.maxRetries))
		return schemas.Decision{Kind: schemas.DecisionAbort, Reason: ReasonRetryLimit}, nil
	}

	ok, err := c.operator.ConfirmRetry(ctx, out.Evidence)
	if err != nil {
		return schemas.Decision{}, err
	}
	if !ok {
		c.logger.Info("Operator declined retry.")
		return schemas.Decision{Kind: schemas.DecisionAbort, Reason: ReasonDeclined}, nil
	}

	c.logger.Info("Regenerating routine.", zap.Int("retry", retriesUsed+1))
	raw, err := c.translator.Translate(ctx, task, out.Evidence)
	if err != nil {
		return schemas.Decision{}, err
	}
	r, err := c.normalizer.Normalize(raw)
	if err != nil {
		return schemas.Decision{}, err
	}
	return schemas.Decision{Kind: schemas.DecisionRetry, Source: r.Source, Reason: ReasonApproved}, nil
}
