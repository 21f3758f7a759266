// Package retry 提供带退避的有界重试
package retry

import (
	"context"
	"time"
)

// Do perform operation, retry on failure
func Do(ctx context.Context, operation func() error, opts ...Option) error {
	_, err := DoWithData(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, opts...)
	return err
}

// DoWithData performs the operation and returns its data, retrying on failure
// On failure the returned error is a *MultiError that unwraps to the last attempt's error
func DoWithData[T any](ctx context.Context, operation func() (T, error), opts ...Option) (T, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var (
		result T
		errs   []error
	)
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		result, err = operation()
		if err == nil {
			return result, nil
		}
		errs = append(errs, err)

		if !cfg.condition.ShouldRetry(err, attempt) || attempt == cfg.maxAttempts {
			return result, &MultiError{Errors: errs, Attempts: attempt}
		}

		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err)
		}

		backoff := cfg.backoff.Next(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < backoff {
			return result, &MultiError{Errors: append(errs, context.DeadlineExceeded), Attempts: attempt}
		}

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		}
	}

	return result, &MultiError{Errors: errs, Attempts: cfg.maxAttempts}
}
