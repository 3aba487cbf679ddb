// Package retry provides an explicit exponential-backoff wrapper. Retry
// behavior is visible at the call site instead of hidden behind a
// decorator.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Options struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// InitialBackoff is doubled after every failed attempt.
	InitialBackoff time.Duration
	// Retryable reports whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool
	// Sleep is swappable in tests. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Do calls fn up to MaxRetries+1 times, sleeping InitialBackoff*2^attempt
// between attempts. A non-retryable error returns immediately; after the
// last attempt the error is returned annotated with the attempt count.
func Do(ctx context.Context, fn func() error, opts Options) error {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	backoff := opts.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if opts.Retryable != nil && !opts.Retryable(lastErr) {
			return lastErr
		}
		if attempt == opts.MaxRetries {
			break
		}

		sleep(backoff)
		backoff *= 2
	}

	return fmt.Errorf("failed after %d attempts: %w", opts.MaxRetries+1, lastErr)
}
