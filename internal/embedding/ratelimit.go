package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a Provider with a token bucket so remote
// backends are not hammered during backfills or bulk ingestion.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner with a limit of requestsPerSecond
// and the given burst size.
func NewRateLimitedProvider(inner Provider, requestsPerSecond float64, burst int) *RateLimitedProvider {
	interval := time.Duration(1000.0/requestsPerSecond) * time.Millisecond
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

// Embed waits for a rate limiter token, then delegates to the wrapped
// provider. Waiting is bounded by the caller's context.
func (p *RateLimitedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return p.inner.Embed(ctx, text)
}

// Dimensions returns the wrapped provider's embedding dimension.
func (p *RateLimitedProvider) Dimensions() int {
	return p.inner.Dimensions()
}
