package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// IntervalLimiter spaces actions at least minInterval apart. The first
// action is never delayed.
type IntervalLimiter struct {
	limiter *rate.Limiter
}

func New(minInterval time.Duration) *IntervalLimiter {
	return &IntervalLimiter{limiter: rate.NewLimiter(limitFor(minInterval), 1)}
}

func (l *IntervalLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}
