package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/provider"
	"github.com/skosovsky/chatbridge/provider/providertest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStatusError(t *testing.T) {
	t.Parallel()
	err := provider.NewStatusError("yuanbao", http.StatusBadGateway, []byte(`{"error":{"message":"upstream down"}}`))
	assert.Equal(t, "upstream down", err.Message)
	assert.Contains(t, err.Error(), "502")
	require.ErrorIs(t, fmt.Errorf("wrap: %w", err), provider.ErrHTTPStatus)

	var se *provider.StatusError
	require.ErrorAs(t, fmt.Errorf("wrap: %w", err), &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestParseErrorMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"nested error", 400, `{"error":{"message":"bad"}}`, "bad"},
		{"flat message", 400, `{"message":"flat"}`, "flat"},
		{"msg field", 400, `{"msg":"short"}`, "short"},
		{"unauthorized", 401, ``, "authentication failed, check the token"},
		{"rate limited", 429, `{}`, "rate limited, too many requests"},
		{"plain body", 500, "boom", "boom"},
		{"status text", 503, "", "service unavailable"},
		{"unknown status", 599, "", "status 599"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, provider.ParseErrorMessage(tt.status, []byte(tt.body)))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", fmt.Errorf("dial: %w", provider.ErrTransport), true},
		{"rate limit", &provider.StatusError{StatusCode: 429}, true},
		{"server error", &provider.StatusError{StatusCode: 503}, true},
		{"client error", &provider.StatusError{StatusCode: 400}, false},
		{"decode", provider.ErrDecode, false},
		{"canceled", fmt.Errorf("%w: %w", provider.ErrTransport, context.Canceled), false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, provider.IsRetryable(tt.err))
		})
	}
}

func TestRetryProvider_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	fake := &providertest.Fake{CreateFunc: func(context.Context, string) (string, error) {
		if calls.Add(1) < 3 {
			return "", fmt.Errorf("reset: %w", provider.ErrTransport)
		}
		return "chat-ok", nil
	}}
	p := provider.WithRetry(fake, 3, provider.WithBaseDelay(time.Millisecond))
	id, err := p.CreateConversation(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "chat-ok", id)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryProvider_GivesUp(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	fake := &providertest.Fake{CreateFunc: func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", &provider.StatusError{Provider: "fake", StatusCode: 502}
	}}
	_, err := provider.WithRetry(fake, 2, provider.WithBaseDelay(time.Millisecond)).CreateConversation(context.Background(), "tok")
	require.ErrorIs(t, err, provider.ErrHTTPStatus)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryProvider_ZeroRetriesMakesOneAttempt(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, -1} {
		var calls atomic.Int32
		fake := &providertest.Fake{CreateFunc: func(context.Context, string) (string, error) {
			calls.Add(1)
			return "", fmt.Errorf("reset: %w", provider.ErrTransport)
		}}
		_, err := provider.WithRetry(fake, n, provider.WithBaseDelay(time.Millisecond)).CreateConversation(context.Background(), "tok")
		require.ErrorIs(t, err, provider.ErrTransport)
		assert.NotContains(t, err.Error(), "retries")
		assert.Equal(t, int32(1), calls.Load(), "maxRetries=%d", n)
	}
}

func TestRetryProvider_NoRetryOnClientError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	fake := &providertest.Fake{CreateFunc: func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", &provider.StatusError{Provider: "fake", StatusCode: 401}
	}}
	_, err := provider.WithRetry(fake, 3, provider.WithBaseDelay(time.Millisecond)).CreateConversation(context.Background(), "tok")
	require.ErrorIs(t, err, provider.ErrHTTPStatus)
	assert.NotContains(t, err.Error(), "retries")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryProvider_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	fake := &providertest.Fake{CreateFunc: func(context.Context, string) (string, error) {
		cancel()
		return "", provider.ErrTransport
	}}
	_, err := provider.WithRetry(fake, 5, provider.WithBaseDelay(time.Hour)).CreateConversation(ctx, "tok")
	require.ErrorIs(t, err, provider.ErrTransport)
}

func TestRetryProvider_PassesThrough(t *testing.T) {
	t.Parallel()
	fake := &providertest.Fake{Chunks: []string{"a", "b"}}
	p := provider.WithRetry(fake, 1)
	ctx := context.Background()
	req := provider.Request{Token: "t", Config: &chatbridge.ChatConfig{ChatID: "c"}}

	reply, err := p.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "ab", reply.Text)

	ch, err := p.Stream(ctx, req)
	require.NoError(t, err)
	var got string
	for ev := range ch {
		got += ev.Text
	}
	assert.Equal(t, "ab", got)

	att, err := p.UploadAttachment(ctx, "t", provider.Upload{Name: "a.png", Kind: chatbridge.PartImage, Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "att-a.png", att.ID)

	require.NoError(t, p.DeleteConversation(ctx, "t", "c"))
	assert.Equal(t, []string{"c"}, fake.Deleted())
	assert.Len(t, fake.Requests(), 2)
}

func TestTracedProvider(t *testing.T) {
	t.Parallel()
	fake := &providertest.Fake{Chunks: []string{"x"}, CompleteErr: nil}
	p := provider.WithTracing(fake, noop.NewTracerProvider())
	ctx := context.Background()
	cfg := &chatbridge.ChatConfig{ChatID: "c", ModelName: "m"}

	id, err := p.CreateConversation(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", id)

	reply, err := p.Complete(ctx, provider.Request{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, "x", reply.Text)

	ch, err := p.Stream(ctx, provider.Request{Config: cfg})
	require.NoError(t, err)
	for range ch {
	}

	_, err = p.UploadAttachment(ctx, "t", provider.Upload{Name: "f", Kind: chatbridge.PartFile})
	require.Error(t, err, "fake rejects empty uploads")

	require.NoError(t, p.DeleteConversation(ctx, "t", "c"))

	failing := provider.WithTracing(&providertest.Fake{CompleteErr: provider.ErrTransport}, nil)
	_, err = failing.Complete(ctx, provider.Request{})
	require.ErrorIs(t, err, provider.ErrTransport)
}
