package generate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig holds retry configuration for generation requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per request.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// Backoff returns the wait after the given failed attempt (1-based). The
// schedule is deterministic: base * multiplier^(attempt-1), capped.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}
	backoff := time.Duration(float64(c.BackoffBase) * multiplier)
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// attemptFunc runs one attempt. attemptCtx carries the per-call timeout.
type attemptFunc func(attemptCtx context.Context) (Result, error)

// retry runs fn up to MaxAttempts times. Only transient failures are
// retried. runCtx cancellation stops further attempts but never interrupts
// an attempt in flight; each attempt is bounded by timeout instead. A retry
// cut short by cancellation returns an error wrapping ErrNotDispatched.
func retry(runCtx context.Context, cfg RetryConfig, timeout time.Duration, sleep SleepFunc, fn attemptFunc) (Result, int, error) {
	maxAttempts := max(cfg.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := runAttempt(runCtx, timeout, fn)
		if err == nil {
			return res, attempt, nil
		}
		if errors.Is(err, ErrNotDispatched) {
			return Result{}, attempt - 1, err
		}
		lastErr = err
		if !IsTransient(err) || attempt == maxAttempts {
			return Result{}, attempt, lastErr
		}
		if err := sleep(runCtx, cfg.Backoff(attempt)); err != nil {
			// Attempts remain; the request is pending, not failed.
			return Result{}, attempt, fmt.Errorf("%w: canceled during backoff: %w", ErrNotDispatched, lastErr)
		}
	}
	return Result{}, maxAttempts, lastErr
}

func runAttempt(runCtx context.Context, timeout time.Duration, fn attemptFunc) (Result, error) {
	ctx := context.WithoutCancel(runCtx)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
