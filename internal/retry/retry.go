// Package retry runs operations that may hit transient contention, backing off
// exponentially with full jitter and giving up after a bounded number of attempts
// or a hard timeout.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/observability/metrics"
)

const maxShift = 30

// Policy bounds a retry loop.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Timeout   time.Duration
}

// DefaultPolicy is used when a component is given a zero policy.
var DefaultPolicy = Policy{
	Attempts:  5,
	BaseDelay: 10 * time.Millisecond,
	MaxDelay:  500 * time.Millisecond,
	Timeout:   3 * time.Second,
}

// Normalize fills zero fields from DefaultPolicy.
func (p Policy) Normalize() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultPolicy.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy.Timeout
	}
	return p
}

// Do calls fn until it succeeds, returns a non-transient error, or the policy is
// exhausted. Exhaustion returns an error wrapping kernel.ErrResourceContention.
func Do(ctx context.Context, op string, policy Policy, fn func(ctx context.Context) error) error {
	policy = policy.Normalize()
	ctx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			metrics.IncRetry(op)
			if err := sleep(ctx, Backoff(policy, attempt-1)); err != nil {
				return fmt.Errorf("%s: %w after %d attempts: %v", op, kernel.ErrResourceContention, attempt, lastErr)
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !kernel.IsTransient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%s: %w after %d attempts: %v", op, kernel.ErrResourceContention, policy.Attempts, lastErr)
}

// Backoff returns a full-jitter delay in [0, min(base*2^attempt, max)).
func Backoff(policy Policy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	delay := policy.BaseDelay << attempt
	if delay <= 0 || delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
