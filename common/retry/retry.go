// Package retry runs an operation repeatedly with exponential backoff until
// it succeeds, the attempt budget is spent, or the context is cancelled.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls how Do backs off between attempts.
type Config struct {
	// MaxAttempts counts the first call too. Values below 1 mean a single
	// attempt with no retries.
	MaxAttempts int
	// InitialDelay is the wait after the first failure. Each later wait is
	// double the previous one, capped at MaxDelay.
	InitialDelay time.Duration
	// MaxDelay bounds the wait between attempts.
	MaxDelay time.Duration
	// ShouldRetry classifies errors. A nil predicate retries every error.
	// Return false for permanent failures so they surface immediately.
	ShouldRetry func(err error) bool
}

// DefaultConfig suits short network calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// Do invokes fn until it returns nil, the attempts run out, ShouldRetry
// rejects the error, or ctx is done. The last attempt's error is returned;
// when the context ends mid-retry it is joined with ctx.Err().
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt >= cfg.MaxAttempts {
			return lastErr
		}

		slog.Debug("retry: attempt failed",
			"attempt", attempt, "max", cfg.MaxAttempts,
			"delay", delay, "err", lastErr)

		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
