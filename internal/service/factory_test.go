// File: internal/service/factory_test.go
package service

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webpilot/internal/browser/cdp"
	"github.com/xkilldash9x/webpilot/internal/browser/fakedriver"
	"github.com/xkilldash9x/webpilot/internal/browser/pwdriver"
	"github.com/xkilldash9x/webpilot/internal/browser/roddriver"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/mocks"
	"github.com/xkilldash9x/webpilot/internal/operator"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.TranslatorCfg.APIKey = "test-key"
	cfg.EvidenceCfg.Dir = t.TempDir()
	return cfg
}

func TestCreate_WiresComponents(t *testing.T) {
	cfg := testConfig(t)
	op := new(mocks.MockOperator)

	c, err := NewComponentFactory().Create(context.Background(), cfg, RunOptions{
		Operator: op,
		Driver:   fakedriver.New(),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Shutdown()

	assert.NotEmpty(t, c.RunID)
	assert.NotNil(t, c.LLMClient)
	assert.NotNil(t, c.Sessions)
	assert.NotNil(t, c.Runner)
	assert.Same(t, op, c.Operator)
	assert.Contains(t, c.Evidence.Dir(), c.RunID, "per-attempt evidence lives in a run directory")
}

func TestCreate_LLMClientOverrideSkipsProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.TranslatorCfg.Provider = "llama"
	llm := new(mocks.MockLLMClient)
	llm.On("Close").Return(nil)

	c, err := NewComponentFactory().Create(context.Background(), cfg, RunOptions{
		Operator:  new(mocks.MockOperator),
		Driver:    fakedriver.New(),
		LLMClient: llm,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Same(t, llm, c.LLMClient)

	c.Shutdown()
	llm.AssertCalled(t, "Close")
}

func TestCreate_UnknownProviderFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.TranslatorCfg.Provider = "llama"

	_, err := NewComponentFactory().Create(context.Background(), cfg, RunOptions{
		Operator: new(mocks.MockOperator),
		Driver:   fakedriver.New(),
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize LLM client")
}

func TestCreate_UnknownDriverFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.BrowserCfg.Driver = "netscape"

	_, err := NewComponentFactory().Create(context.Background(), cfg, RunOptions{
		Operator: new(mocks.MockOperator),
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown browser driver")
}

func TestNewDriver(t *testing.T) {
	logger := zaptest.NewLogger(t)
	tests := []struct {
		driver string
		want   interface{}
	}{
		{"", &cdp.Driver{}},
		{config.DriverCDP, &cdp.Driver{}},
		{config.DriverPlaywright, &pwdriver.Driver{}},
		{config.DriverRod, &roddriver.Driver{}},
	}
	for _, tt := range tests {
		d, err := NewDriver(config.BrowserConfig{Driver: tt.driver}, logger)
		require.NoError(t, err, tt.driver)
		assert.IsType(t, tt.want, d, tt.driver)
	}
}

func TestNewOperator(t *testing.T) {
	cfg := testConfig(t)

	op, err := NewOperator(cfg, RunOptions{NonInteractive: true, Task: "x"})
	require.NoError(t, err)
	require.IsType(t, &operator.Policy{}, op)
	ok, err := op.ConfirmRetry(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok, "--yes approves retries")

	cfg.OperatorCfg.Interactive = false
	op, err = NewOperator(cfg, RunOptions{Task: "x"})
	require.NoError(t, err)
	require.IsType(t, &operator.Policy{}, op)
	ok, err = op.ConfirmRetry(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok, "retries stay off unless auto_approve is set")

	override := new(mocks.MockOperator)
	op, err = NewOperator(cfg, RunOptions{Operator: override})
	require.NoError(t, err)
	assert.Same(t, override, op)
}

func TestShutdown_PartialComponents(t *testing.T) {
	assert.NotPanics(t, func() { (&Components{}).Shutdown() })

	llm := new(mocks.MockLLMClient)
	llm.On("Close").Return(io.ErrClosedPipe).Once()
	assert.NotPanics(t, func() { (&Components{LLMClient: llm}).Shutdown() })
	llm.AssertExpectations(t)
}
