// Package retry runs an operation with bounded exponential backoff.
//
// Every failure is treated as retryable. The delay before attempt k (k >= 2)
// is BaseDelay × 2^(k-2), without jitter, and no more than MaxAttempts
// attempts are made. Each attempt invokes the operation exactly once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts is the initial attempt plus five retries.
	DefaultMaxAttempts = 6
	// DefaultBaseDelay is the wait before the second attempt.
	DefaultBaseDelay = time.Second
)

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 fall back to DefaultMaxAttempts.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; later waits double.
	// Zero disables waiting.
	BaseDelay time.Duration

	// Sleep replaces the wall-clock wait. Tests inject a recorder here.
	Sleep SleepFunc

	// OnRetry, when set, is called after a failed attempt that will be
	// followed by another one.
	OnRetry func(attempt int, err error, next time.Duration)
}

// DefaultPolicy returns a Policy with the default attempt budget and delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Delay returns the wait before the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 2 || p.BaseDelay <= 0 {
		return 0
	}
	return p.BaseDelay << (attempt - 2)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err came from a retry loop that ran out of
// attempts.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Do calls fn until it succeeds or the attempt budget is spent. fn receives
// the 1-based attempt number. When all attempts fail, Do returns an
// *ExhaustedError wrapping the last error. If ctx is done while waiting
// between attempts, Do stops early and returns an error wrapping ctx.Err().
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	limit := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return zero, fmt.Errorf("retry: stopped after %d attempts: %w", attempt-1, err)
			}
		} else if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry: not started: %w", err)
		}

		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt < limit && p.OnRetry != nil {
			p.OnRetry(attempt, err, p.Delay(attempt+1))
		}
	}

	return zero, &ExhaustedError{Attempts: limit, Err: lastErr}
}

// Sleep waits for d using a timer and returns ctx.Err() if ctx finishes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
