// Package retry executes fallible operations with bounded exponential backoff.
// Errors are terminal unless explicitly marked retryable by the caller that
// produced them; classification happens where the failure is understood, not
// here.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPolicy matches the worker's stance on flaky external services:
// up to 3 retries on top of the first attempt, starting at a 2s delay.
var DefaultPolicy = Policy{MaxRetries: 3, BaseDelay: 2 * time.Second}

// Policy bounds the retry behavior.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// BaseDelay is the backoff before the first retry; it doubles per attempt.
	BaseDelay time.Duration

	// sleep overrides the backoff wait, for tests. Nil means a real,
	// context-aware sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// WithSleep returns a copy of the policy using the given sleep function.
func (p Policy) WithSleep(sleep func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = sleep
	return p
}

// retryableError marks an error as worth re-attempting.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// Retryable marks an error as transient. Do will re-attempt the operation for
// errors wrapped this way; everything else propagates immediately.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retryable anywhere in its
// chain.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// ExhaustedError is returned when the retry budget runs out. It carries the
// last underlying error and the total number of attempts made.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs op, retrying on errors marked Retryable with exponential backoff:
// BaseDelay * 2^attempt before retry attempt+1. Non-retryable errors and
// context cancellation propagate immediately. On budget exhaustion it returns
// an *ExhaustedError wrapping the last error.
func Do(ctx context.Context, p Policy, op func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.BaseDelay << (attempt - 1)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}

	return &ExhaustedError{Attempts: p.MaxRetries + 1, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
