package shared

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a transient conflict is retried before it is
// surfaced to the caller
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultRetryPolicy matches the propagation rules for retryable conflicts:
// a handful of attempts with exponential backoff, then give up loudly.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: 50 * time.Millisecond,
	}
}

// Backoff returns the delay before the given attempt (0-based): base, 2*base,
// 4*base, ...
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseBackoff * time.Duration(1<<uint(attempt))
}

// Retry runs fn up to policy.MaxAttempts times, sleeping between attempts.
// Only errors reported retryable by IsRetryable are retried; anything else is
// returned immediately. The last retryable error is returned when attempts
// are exhausted.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Backoff(attempt - 1)):
			}
		}

		err = fn(ctx)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}
