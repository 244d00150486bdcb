package pool

import (
	"context"
	"time"

	"github.com/ocyss/asyncpool/internal/algorithms"
)

// BackoffKind selects the delay schedule between retries.
type BackoffKind = algorithms.Kind

const (
	BackoffExponential  = algorithms.Exponential
	BackoffJittered     = algorithms.Jittered
	BackoffDecorrelated = algorithms.Decorrelated
)

// RetryPolicy configures Retrying.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, first one included. Values below 1 mean 1.
	MaxAttempts int

	Backoff      BackoffKind
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// JitterFactor applies to BackoffJittered (0.1 = ±10%).
	JitterFactor float64

	// RetryIf decides whether an error is worth another attempt. Nil retries every error.
	RetryIf func(err error) bool

	// OnRetry is called before each retry with the 1-based number of the failed attempt.
	OnRetry func(attempt int, err error)
}

// Retrying wraps fn so that failed calls are retried according to policy.
// The pool never retries on its own; wrap the task function when an item
// deserves more than one attempt.
//
// Example:
//
//	task := pool.Retrying(updateRecord, pool.RetryPolicy{
//	    MaxAttempts:  3,
//	    InitialDelay: 200 * time.Millisecond,
//	    RetryIf:      records.IsTemporary,
//	})
//	p, _ := pool.New(task, 10)
func Retrying[T any, R any](fn TaskFunc[T, R], policy RetryPolicy) TaskFunc[T, R] {
	attempts := max(policy.MaxAttempts, 1)
	cfg := algorithms.Config{
		Kind:    policy.Backoff,
		Initial: policy.InitialDelay,
		Max:     policy.MaxDelay,
		Jitter:  policy.JitterFactor,
	}

	return func(ctx context.Context, item T) (result R, err error) {
		backoff := algorithms.New(cfg)

		for attempt := range attempts {
			if attempt > 0 {
				if policy.OnRetry != nil {
					policy.OnRetry(attempt, err)
				}
				if delay := backoff.Next(attempt - 1); delay > 0 {
					timer := time.NewTimer(delay)
					select {
					case <-timer.C:
					case <-ctx.Done():
						timer.Stop()
						return result, ctx.Err()
					}
				}
			}

			result, err = fn(ctx, item)
			if err == nil {
				return result, nil
			}
			if policy.RetryIf != nil && !policy.RetryIf(err) {
				return result, err
			}
		}

		return result, err
	}
}
