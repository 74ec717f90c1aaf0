package browser

import (
	"context"
	"time"
)

// Backoff spaces out readiness checks: Initial, 2*Initial, 4*Initial and so
// on, never more than Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: 100 * time.Millisecond, Max: time.Second}
}

func (b Backoff) Delay(attempt int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = DefaultBackoff().Initial
	}
	limit := b.Max
	if limit < initial {
		limit = initial
	}
	if attempt > 30 {
		return limit
	}
	d := initial << attempt
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

// Poll evaluates cond until it returns true. It gives up with ErrNotReady
// once timeout has elapsed; an error from cond or the context ends polling
// immediately. cond is always evaluated at least once.
func Poll(ctx context.Context, timeout time.Duration, backoff Backoff, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)

	for attempt := 0; ; attempt++ {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrNotReady
		}
		wait := min(backoff.Delay(attempt), remaining)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
