package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how startup connections are retried.
type RetryPolicy struct {
	Attempts int
	BaseWait time.Duration
}

// DefaultRetryPolicy retries three times starting at one second.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseWait: time.Second}

// Backoff returns the wait before the given zero-based retry: the base wait
// doubled per attempt with up to 25% jitter either way.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseWait << attempt
	jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404
	return base + jitter
}

// connect calls dial until it succeeds, the attempts run out or ctx ends.
func connect[T any](ctx context.Context, p RetryPolicy, name string, l *slog.Logger, dial func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := dial(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		wait := p.Backoff(attempt)
		if l != nil {
			l.WarnContext(ctx, name+" connection failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", attempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("connect %s: %w", name, ctx.Err())
		case <-time.After(wait):
		}
	}

	return zero, fmt.Errorf("connect %s after %d attempts: %w", name, attempts, lastErr)
}
