package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// LLMError is the base error type for all LLM client errors.
type LLMError struct {
	Code    int
	Message string
	Cause   error
}

func (e *LLMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm error %d: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("llm error %d: %s", e.Code, e.Message)
}

func (e *LLMError) Unwrap() error { return e.Cause }

// RateLimitError is returned when the provider rate-limits the request.
type RateLimitError struct{ LLMError }

// ServerError is returned on 5xx responses from the provider.
type ServerError struct{ LLMError }

// AuthError is returned on authentication/authorization failures.
type AuthError struct{ LLMError }

// ContextLengthError is returned when the request exceeds the model's context window.
type ContextLengthError struct{ LLMError }

// ContentFilterError is returned when the request is blocked by the provider's safety filter.
type ContentFilterError struct{ LLMError }

// classify wraps base in the typed error matching its HTTP status.
func classify(base LLMError) error {
	switch base.Code {
	case 429:
		return &RateLimitError{LLMError: base}
	case 401, 403:
		return &AuthError{LLMError: base}
	case 400, 413:
		return &ContextLengthError{LLMError: base}
	case 500, 502, 503, 504, 529:
		return &ServerError{LLMError: base}
	}
	return &base
}

// HTTPError builds the typed error for a provider response with the given
// status code.
func HTTPError(code int, message string, cause error) error {
	return classify(LLMError{Code: code, Message: message, Cause: cause})
}

// Retryable returns true if the error is transient and the request may be retried.
func Retryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	return errors.As(err, &rl) || errors.As(err, &se)
}

// WithRetry retries fn up to maxAttempts while it returns a Retryable
// error, waiting an exponentially growing, jittered delay capped at 30s
// between attempts. Non-transient errors are returned immediately.
func WithRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	var lastErr error
	for i := range maxAttempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if i == maxAttempts-1 {
			break
		}
		wait := jittered(i)
		slog.Debug("transient llm error, retrying", "attempt", i+1, "wait", wait, "error", lastErr)
		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}

// jittered returns the wait after failed attempt i: base 1s doubling up to
// 30s, scaled into [0.75, 1.25) of the base.
func jittered(i int) time.Duration {
	base := time.Duration(1<<uint(i)) * time.Second
	if base > maxRetryWait {
		base = maxRetryWait
	}
	jitter := time.Duration(rand.Float64() * 0.5 * float64(base))
	return base/4*3 + jitter
}

const maxRetryWait = 30 * time.Second
