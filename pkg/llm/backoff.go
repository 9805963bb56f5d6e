package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrEmptyResult is returned by a Retry callback that completed without
// producing anything usable. Retry treats it like any other failure.
var ErrEmptyResult = errors.New("empty result")

// Backoff configures Retry.
type Backoff struct {
	// MaxAttempts is the total number of calls, including the first.
	// Zero means 3.
	MaxAttempts int
	// InitialDelay is the wait after the first failure; it doubles after
	// each subsequent one. Zero means one second.
	InitialDelay time.Duration
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff is three attempts starting at a one second delay.
var DefaultBackoff = Backoff{MaxAttempts: 3, InitialDelay: time.Second}

func (b Backoff) withDefaults() Backoff {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = DefaultBackoff.MaxAttempts
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = DefaultBackoff.InitialDelay
	}
	if b.Sleep == nil {
		b.Sleep = sleepContext
	}
	return b
}

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

// Retry calls fn until it succeeds or b.MaxAttempts calls have failed.
// After failed attempt i (0-based) it waits InitialDelay * 2^i; there is no
// wait after the last attempt. Unlike WithRetry every error is retried,
// which suits multi-step work such as generate-then-execute cycles.
func Retry[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.withDefaults()
	var (
		zero    T
		lastErr error
	)
	for attempt := range b.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == b.MaxAttempts-1 {
			break
		}
		delay := b.InitialDelay << uint(attempt)
		slog.Warn("attempt failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		if err := b.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("failed after %d attempts: %w", b.MaxAttempts, lastErr)
}
