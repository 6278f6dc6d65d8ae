// Package ratelimit paces virtual-user starts.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter gates workflow starts at a fixed rate per second.
type Limiter struct {
	limiter *rate.Limiter
}

func New(startsPerSec int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(startsPerSec), startsPerSec),
	}
}

// Wait blocks until the next start is allowed or the context is canceled.
// A zero rate means no pacing.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter.Limit() == 0 {
		return nil
	}
	return l.limiter.Wait(ctx)
}
