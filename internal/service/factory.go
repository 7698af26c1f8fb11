// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/engine"
	"github.com/xkilldash9x/webpilot/internal/evidence"
	"github.com/xkilldash9x/webpilot/internal/operator"
	"github.com/xkilldash9x/webpilot/internal/orchestrator"
	"github.com/xkilldash9x/webpilot/internal/routine"
	"github.com/xkilldash9x/webpilot/internal/translator"
)

// RunOptions carry the per-invocation choices made on the command line.
type RunOptions struct {
	// Task is used by non-interactive operators; interactive ones prompt when empty.
	Task string
	// NonInteractive answers every prompt from configuration.
	NonInteractive bool
	// Operator overrides the operator the factory would build.
	Operator operator.Operator
	// Driver overrides the browser driver selected by configuration.
	Driver browser.Driver
	// LLMClient overrides the provider client selected by configuration.
	LLMClient schemas.LLMClient
}

// ComponentFactory builds the components for one run.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, opts RunOptions, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires configuration into clients, drivers and the run loop. Nothing
// is launched yet; the browser starts when the runner acquires a session.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, opts RunOptions, logger *zap.Logger) (*Components, error) {
	components := &Components{RunID: uuid.NewString()}
	logger = logger.With(zap.String("run_id", components.RunID))

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. LLM client and translator
	llmClient := opts.LLMClient
	var err error
	if llmClient == nil {
		if llmClient, err = InitializeLLMClient(ctx, cfg.Translator(), logger); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
	}
	components.LLMClient = llmClient
	tr := translator.New(llmClient, cfg.Translator(), logger)
	norm := routine.NewNormalizer(cfg.Normalizer())
	logger.Debug("Translator initialized.", zap.String("provider", cfg.Translator().Provider))

	// 2. Browser driver and session manager
	driver := opts.Driver
	if driver == nil {
		if driver, err = NewDriver(cfg.Browser(), logger); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
	}
	components.Sessions = browser.NewManager(driver, cfg.Browser(), logger)
	logger.Debug("Session manager initialized.", zap.String("driver", driver.Name()))

	// 3. Evidence store and execution engine
	components.Evidence = evidence.NewStore(cfg.Evidence(), components.RunID, logger)
	eng, err := engine.New(cfg.Execution(), components.Evidence, components.RunID, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize execution engine: %w", err)
		return nil, initializationErr
	}

	// 4. Operator
	op, err := NewOperator(cfg, opts)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Operator = op

	// 5. Retry controller and run loop
	ctrl := agent.NewController(tr, norm, op, cfg.Retry(), logger)
	runner, err := orchestrator.New(orchestrator.Deps{
		Translator: tr,
		Normalizer: norm,
		Sessions:   components.Sessions,
		Executor:   eng,
		Decider:    ctrl,
		Operator:   op,
	}, orchestrator.Options{
		FreshSessionPerAttempt: cfg.Browser().FreshSessionPerAttempt,
		PauseBeforeClose:       cfg.Operator().PauseBeforeClose,
	}, components.RunID, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create runner: %w", err)
		return nil, initializationErr
	}
	components.Runner = runner

	logger.Debug("All run components initialized.")
	return components, nil
}
