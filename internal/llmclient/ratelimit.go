package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// RateLimitedClient wraps another LLMClient and paces its requests.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimitedClient allows perMinute requests per minute with a burst of
// one. A non-positive perMinute disables the limit.
func NewRateLimitedClient(next schemas.LLMClient, perMinute int, logger *zap.Logger) *RateLimitedClient {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("llm_rate_limiter"),
	}
}

// Generate waits for a token, then delegates.
func (r *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}
	r.logger.Debug("Forwarding LLM request")
	return r.next.Generate(ctx, req)
}

// Close closes the wrapped client.
func (r *RateLimitedClient) Close() error {
	return r.next.Close()
}
