package embedding

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/orbis-search/orbis/internal/domain"
	"github.com/orbis-search/orbis/internal/metrics"
)

const (
	// DefaultRetryAttempts is the total number of Embed calls made before
	// giving up, the initial attempt included.
	DefaultRetryAttempts = 3

	// DefaultRetryBackoff is the base delay between attempts. The wait
	// grows linearly with the attempt number.
	DefaultRetryBackoff = 200 * time.Millisecond
)

// RetryEmbedder retries transient provider failures a bounded number of
// times. Context errors are never retried.
type RetryEmbedder struct {
	inner    domain.Embedder
	provider string
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

// NewRetry creates a bounded-retry decorator. Non-positive attempts or
// backoff fall back to the defaults.
func NewRetry(inner domain.Embedder, provider string, attempts int, backoff time.Duration, logger *zap.Logger) *RetryEmbedder {
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryEmbedder{
		inner:    inner,
		provider: provider,
		attempts: attempts,
		backoff:  backoff,
		logger:   logger,
	}
}

// Embed delegates to the inner embedder, retrying failed calls with a
// linear backoff until the attempt budget is spent.
func (e *RetryEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		result, err := e.inner.Embed(ctx, text)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == e.attempts {
			break
		}

		metrics.EmbeddingRetriesTotal.WithLabelValues(e.provider).Inc()
		e.logger.Warn("embedding attempt failed, retrying",
			zap.String("provider", e.provider),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return domain.EmbeddingResult{}, ctx.Err()
		case <-time.After(e.backoff * time.Duration(attempt)):
		}
	}
	return domain.EmbeddingResult{}, lastErr
}
