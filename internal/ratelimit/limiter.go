// Package ratelimit paces outbound requests to the arXiv API, which asks
// clients to keep roughly one request every three seconds.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between successive requests. The first
// call proceeds immediately; later calls wait out the remainder of the
// interval. Waits are interruptible through the context.
type Limiter struct {
	limiter *rate.Limiter
}

// New builds a limiter allowing requestsPerSecond sustained calls with no
// burst beyond a single token. requestsPerSecond must be positive.
func New(requestsPerSecond float64) (*Limiter, error) {
	if requestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive, got %v", requestsPerSecond)
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}, nil
}

// Wait blocks until the next request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
