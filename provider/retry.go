package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/skosovsky/chatbridge"
)

// RetryProvider wraps a Provider with exponential backoff retry logic on transport errors,
// rate limits and server errors. DeleteConversation is passed through unchanged.
type RetryProvider struct {
	inner      Provider
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryOption configures a RetryProvider.
type RetryOption func(*RetryProvider)

// WithBaseDelay sets the delay before the first retry. It doubles per attempt.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(r *RetryProvider) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

// WithRetry wraps p. maxRetries 0 makes a single attempt; negative values count as 0.
func WithRetry(p Provider, maxRetries int, opts ...RetryOption) *RetryProvider {
	maxRetries = max(maxRetries, 0)
	r := &RetryProvider{inner: p, maxRetries: maxRetries, baseDelay: 500 * time.Millisecond, maxDelay: 30 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateConversation implements Provider.
func (r *RetryProvider) CreateConversation(ctx context.Context, token string) (string, error) {
	return retry(ctx, r, func() (string, error) { return r.inner.CreateConversation(ctx, token) })
}

// DeleteConversation implements Provider.
func (r *RetryProvider) DeleteConversation(ctx context.Context, token, chatID string) error {
	return r.inner.DeleteConversation(ctx, token, chatID)
}

// Complete implements Provider.
func (r *RetryProvider) Complete(ctx context.Context, req Request) (*Reply, error) {
	return retry(ctx, r, func() (*Reply, error) { return r.inner.Complete(ctx, req) })
}

// Stream implements Provider. Only opening the stream is retried.
func (r *RetryProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	return retry(ctx, r, func() (<-chan StreamEvent, error) { return r.inner.Stream(ctx, req) })
}

// UploadAttachment implements Provider.
func (r *RetryProvider) UploadAttachment(ctx context.Context, token string, file Upload) (chatbridge.Attachment, error) {
	return retry(ctx, r, func() (chatbridge.Attachment, error) { return r.inner.UploadAttachment(ctx, token, file) })
}

func retry[T any](ctx context.Context, r *RetryProvider, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		v, err := call()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == r.maxRetries {
			if attempt == 0 {
				return zero, err
			}
			break
		}
		if err := r.backoff(ctx, attempt); err != nil {
			return zero, lastErr
		}
	}
	return zero, fmt.Errorf("provider: after %d retries: %w", r.maxRetries, lastErr)
}

// IsRetryable reports whether err is a transport failure, a rate limit or a 5xx status.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= http.StatusInternalServerError
	}
	return errors.Is(err, ErrTransport)
}

func (r *RetryProvider) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(float64(r.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Compile-time check that RetryProvider implements Provider.
var _ Provider = (*RetryProvider)(nil)
