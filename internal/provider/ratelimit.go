package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles Chat calls on a wrapped provider.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p with a token bucket of rps requests per second.
// A non-positive rps returns p unchanged.
func NewRateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{Provider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Chat waits for a token before delegating.
func (r *RateLimited) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.Provider.Chat(ctx, req)
}
