package util

import (
	"context"
	"time"
)

// Retry calls fn up to maxAttempts times with exponential backoff starting
// at baseDelay. When perAttempt is positive, each call runs under its own
// deadline so a hung attempt counts as failed instead of blocking the next
// one. Retry returns nil on the first successful call, or the last error if
// all attempts fail. Context cancellation is respected between attempts.
func Retry(ctx context.Context, maxAttempts int, baseDelay, perAttempt time.Duration, fn func(context.Context) error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = runAttempt(ctx, perAttempt, fn)
		if err == nil {
			return nil
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return err
}

func runAttempt(ctx context.Context, perAttempt time.Duration, fn func(context.Context) error) error {
	if perAttempt <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, perAttempt)
	defer cancel()
	return fn(attemptCtx)
}
