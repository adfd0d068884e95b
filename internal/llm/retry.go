package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RetryPolicy configures retry behavior for remote model calls.
type RetryPolicy struct {
	MaxAttempts  int           // Total attempts including the first (minimum 1)
	InitialDelay time.Duration // Delay before the second attempt; doubles per attempt
	MaxDelay     time.Duration // Cap on the exponential backoff
	Timeout      time.Duration // Per-attempt timeout
}

// DefaultRetryPolicy returns the policy used for generation calls.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Timeout:      2 * time.Minute,
	}
}

// ExhaustedError is returned once every attempt allowed by the policy has
// failed. Callers treat it as fatal for the request.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// RetryProvider wraps a Provider with timeout and retry logic.
type RetryProvider struct {
	inner  Provider
	policy *RetryPolicy
}

// NewRetryProvider wraps an existing provider with a retry policy.
func NewRetryProvider(inner Provider, policy *RetryPolicy) *RetryProvider {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryProvider{inner: inner, policy: policy}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string { return r.inner.Name() }

// Generate runs the generation call under the retry policy.
func (r *RetryProvider) Generate(ctx context.Context, prompt *Prompt, opts *GenerateOptions) (*Generation, error) {
	var gen *Generation
	err := r.do(ctx, func(attemptCtx context.Context) error {
		var err error
		gen, err = r.inner.Generate(attemptCtx, prompt, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return gen, nil
}

// Embed runs the embedding call under the retry policy.
func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.do(ctx, func(attemptCtx context.Context) error {
		var err error
		vecs, err = r.inner.Embed(attemptCtx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// Ping passes through without retrying; health checks want the first answer.
func (r *RetryProvider) Ping(ctx context.Context) error {
	if p, ok := r.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (r *RetryProvider) do(ctx context.Context, call func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if r.policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		}
		err := call(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return &ExhaustedError{Attempts: r.policy.MaxAttempts, Last: lastErr}
}

// backoff returns the delay preceding the given attempt (attempt >= 2),
// doubling from InitialDelay and capped at MaxDelay.
func (r *RetryProvider) backoff(attempt int) time.Duration {
	delay := r.policy.InitialDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if r.policy.MaxDelay > 0 && delay > r.policy.MaxDelay {
			return r.policy.MaxDelay
		}
	}
	return delay
}

// isRetryable determines if an error should trigger another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Caller cancelled: stop immediately.
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Attempt timed out: the next attempt may succeed.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Network errors (refused connections, resets, timeouts) are transient.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()

	if strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests") {
		return true
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}
	// Remaining client errors won't heal with retries.
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") {
		return false
	}

	// Unknown errors from a remote model service are usually transient.
	return true
}
