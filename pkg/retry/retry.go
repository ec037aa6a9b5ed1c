// Package retry provides a bounded exponential-backoff executor for remote
// directory calls.
package retry

import (
	"context"
	"time"

	"github.com/tenantaudit/api/pkg/domain/shared"
)

// Config holds backoff configuration.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Zero means exactly one attempt and no sleep.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns the backoff configuration used for directory calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
	}
}

// Delay returns the sleep duration before the nth retry (1-based):
// min(InitialDelay * 2^(n-1), MaxDelay).
func Delay(cfg Config, retryNum int) time.Duration {
	if retryNum < 1 {
		return 0
	}
	d := cfg.InitialDelay
	for i := 1; i < retryNum; i++ {
		d *= 2
		if d >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}

// Retryable reports whether err is worth retrying. Only transient connection
// failures are; auth, permission and not-found errors propagate immediately.
func Retryable(err error) bool {
	return shared.IsConnection(err)
}

// Do executes op, retrying transient failures with doubling delay capped at
// cfg.MaxDelay. The sleep blocks the calling goroutine; a worker slot in the
// scanner is unavailable for other sites while its call backs off.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, Delay(cfg, attempt)); err != nil {
				return zero, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
