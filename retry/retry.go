package retry

import (
	"context"
	"fmt"
)

// Do runs fn, retrying according to the Retrier found in ctx (or a
// NoopRetrier if none was injected via ToContext). The first attempt always
// runs; subsequent attempts are gated by Retrier.ShouldRetry and spaced by
// Retrier.Wait.
func Do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	retrier := FromContextOrNoop(ctx)

	var (
		result T
		err    error
	)

	attempt := 1
	for {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if !retrier.ShouldRetry(err, attempt) {
			maxAttempts := retrier.MaxAttempts()
			if maxAttempts > 0 && attempt >= maxAttempts {
				return result, fmt.Errorf("max retry attempts (%d) reached: %w", maxAttempts, err)
			}
			return result, err
		}

		if waitErr := retrier.Wait(ctx, attempt); waitErr != nil {
			return result, fmt.Errorf("context cancelled: %w", waitErr)
		}

		attempt++
	}
}

// DoVoid is Do for functions that return only an error.
func DoVoid(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
