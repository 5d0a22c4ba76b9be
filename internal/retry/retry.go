// Package retry provides retry-with-backoff execution for network calls.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Options controls the retry schedule.
type Options struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// DefaultOptions returns the schedule used when no configuration is supplied.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		BackoffMultiplier: 2,
		MaxDelay:          10 * time.Second,
	}
}

func (o Options) normalized() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = 1
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = o.BaseDelay
	}
	return o
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do surfaces the wrapped
// error immediately instead of exhausting the remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn up to opts.MaxAttempts times, sleeping with exponential
// backoff between failed attempts. The delay before attempt k+1 is
// min(BaseDelay * BackoffMultiplier^(k-1), MaxDelay). The final failure
// is returned unchanged. Sleeps are cancelled by ctx.
func Do[T any](ctx context.Context, logger *slog.Logger, name string, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.normalized()

	var lastErr error
	delay := opts.BaseDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			logger.Error("operation failed, not retryable",
				slog.String("operation", name),
				slog.Int("attempt", attempt),
				slog.Any("error", perm.err))
			return zero, perm.err
		}
		lastErr = err

		if attempt == opts.MaxAttempts {
			logger.Error("operation failed, attempts exhausted",
				slog.String("operation", name),
				slog.Int("attempts", opts.MaxAttempts),
				slog.Any("error", err))
			break
		}

		logger.Warn("operation failed, retrying",
			slog.String("operation", name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", opts.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}

		delay = time.Duration(float64(delay) * opts.BackoffMultiplier)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
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
