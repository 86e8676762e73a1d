package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// TimedEmbedder is implemented by embedders that may queue before calling the
// provider. EmbedWithin bounds only the provider call by timeout; time spent
// queued is bounded by ctx alone.
type TimedEmbedder interface {
	EmbedWithin(ctx context.Context, text string, timeout time.Duration) ([]float32, error)
}

// RateLimitedEmbedder spaces calls to an inner Embedder. One limiter is shared
// by every caller, so concurrent requests queue behind each other.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows one call per interval. A non-positive interval disables pacing.
func NewRateLimitedEmbedder(inner Embedder, interval time.Duration) *RateLimitedEmbedder {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimitedEmbedder{inner: inner, limiter: rate.NewLimiter(limit, 1)}
}

// Embed waits for a slot and embeds text with no extra deadline.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.EmbedWithin(ctx, text, 0)
}

// EmbedWithin waits for a slot under ctx, then gives the inner embedder at
// most timeout. A wait that cannot finish before ctx's deadline fails with an
// error wrapping context.DeadlineExceeded.
func (e *RateLimitedEmbedder) EmbedWithin(ctx context.Context, text string, timeout time.Duration) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("embedding rate limiter: %w", ctxErr)
		}
		// Wait refuses up front when the reservation would outlive the deadline
		return nil, fmt.Errorf("embedding rate limiter: %w: %v", context.DeadlineExceeded, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.inner.Embed(ctx, text)
}

// Dimensions returns the inner embedder's vector length
func (e *RateLimitedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close closes the inner embedder
func (e *RateLimitedEmbedder) Close() error {
	return e.inner.Close()
}
