// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/browser/cdp"
	"github.com/xkilldash9x/webpilot/internal/browser/pwdriver"
	"github.com/xkilldash9x/webpilot/internal/browser/roddriver"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmclient"
	"github.com/xkilldash9x/webpilot/internal/operator"
)

// InitializeLLMClient creates the rate limited LLM client for the translator.
func InitializeLLMClient(ctx context.Context, cfg config.TranslatorConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	llmClient, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llmClient, nil
}

// NewDriver returns the browser driver named by cfg.Driver.
func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) (browser.Driver, error) {
	switch cfg.Driver {
	case config.DriverCDP, "":
		return cdp.NewDriver(cfg, logger), nil
	case config.DriverPlaywright:
		return pwdriver.NewDriver(cfg, true, logger), nil
	case config.DriverRod:
		return roddriver.NewDriver(cfg, logger), nil
	}
	return nil, fmt.Errorf("unknown browser driver '%s'. Supported: [%s, %s, %s]", cfg.Driver, config.DriverCDP, config.DriverPlaywright, config.DriverRod)
}

// NewOperator picks the operator for this invocation: the override, a policy
// for unattended runs or the interactive terminal.
func NewOperator(cfg config.Interface, opts RunOptions) (operator.Operator, error) {
	if opts.Operator != nil {
		return opts.Operator, nil
	}
	autoApprove := cfg.Retry().AutoApprove
	if opts.NonInteractive || !cfg.Operator().Interactive {
		return operator.NewPolicy(opts.Task, autoApprove || opts.NonInteractive, os.Stdout), nil
	}
	term, err := operator.NewTerminal(autoApprove)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal operator: %w", err)
	}
	return term, nil
}
