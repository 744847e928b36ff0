package poller

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate is a shared token gate enforcing a minimum spacing between calls to
// one upstream rate-limit domain (typically one API key). Unlike per-worker
// sleeps, a Gate holds the spacing invariant under any degree of worker
// parallelism: burst is 1, so no two tokens are ever issued closer than the
// configured spacing.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate creates a gate issuing at most one token per minSpacing.
// A non-positive spacing yields an unthrottled gate.
func NewGate(minSpacing time.Duration) *Gate {
	if minSpacing <= 0 {
		return &Gate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(minSpacing), 1)}
}

// Wait blocks until a token is available or the context is cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Allow reports whether a call could proceed right now without blocking,
// consuming the token if so.
func (g *Gate) Allow() bool {
	return g.limiter.Allow()
}
