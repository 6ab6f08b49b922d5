// Package embedding provides decorators composed around the base
// embedding provider in the composition root.
package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/orbis-search/orbis/internal/domain"
)

// RateLimitedEmbedder throttles provider calls to a configured request
// rate, smoothing bursts before they hit the provider's own limits.
type RateLimitedEmbedder struct {
	inner   domain.Embedder
	limiter *rate.Limiter
}

// NewRateLimited creates a throttling decorator allowing rps requests per
// second with the given burst.
func NewRateLimited(inner domain.Embedder, rps float64, burst int) *RateLimitedEmbedder {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed waits for a rate token, then delegates. Context cancellation while
// waiting surfaces as an error.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embedding rate limit wait: %w", err)
	}
	return e.inner.Embed(ctx, text)
}
