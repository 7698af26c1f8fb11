// -- internal/llmclient/factory.go --
package llmclient

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/network"
)

// NewClient is a factory function that creates an LLMClient based on the
// configuration. The returned client is already rate limited.
func NewClient(ctx context.Context, cfg config.TranslatorConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	var (
		client schemas.LLMClient
		err    error
	)

	switch cfg.Provider {
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		client, err = NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]", cfg.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
	if err != nil {
		return nil, err
	}

	return NewRateLimitedClient(client, cfg.RequestsPerMinute, logger), nil
}

// newHTTPClient builds the transport shared by both provider SDKs.
func newHTTPClient(cfg config.TranslatorConfig, logger *zap.Logger) (*http.Client, error) {
	netCfg, err := network.NewClientConfig(cfg.Timeout, cfg.Proxy, logger.Named("httpclient"))
	if err != nil {
		return nil, fmt.Errorf("translator.proxy: %w", err)
	}
	return network.NewClient(netCfg), nil
}
