// Package retry runs an operation under a bounded retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrExhausted is matched by every ExhaustedError.
var ErrExhausted = errors.New("retry attempts exhausted")

type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry attempts exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Err}
}

type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Exponential doubles the delay after each failed attempt, capped at MaxDelay.
	Exponential bool
	MaxDelay    time.Duration
	// Retryable decides which failures are retried. A nil predicate retries nothing.
	Retryable func(error) bool
	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backOff() backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(p.Delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	return b
}

// Do calls op until it succeeds, returns a non-retryable error, the context
// is cancelled, or MaxAttempts is reached. Exhaustion is reported as
// *ExhaustedError wrapping the last failure; other failures are returned as-is.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempt := 0
	var permanent error

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		value, err := op(ctx, attempt)
		if err == nil {
			return value, nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			permanent = err
			return value, backoff.Permanent(err)
		}
		return value, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.attempts())),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempt, err, wait)
			}
		}),
	)
	if err == nil {
		return result, nil
	}
	if permanent != nil {
		return zero, permanent
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	return zero, &ExhaustedError{Attempts: attempt, Err: err}
}
