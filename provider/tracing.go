package provider

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/chatbridge"
)

const tracerName = "github.com/skosovsky/chatbridge/provider"

// TracedProvider records an OpenTelemetry span around every provider call.
type TracedProvider struct {
	inner  Provider
	tracer trace.Tracer
}

// WithTracing wraps p. A nil tp uses the global TracerProvider.
func WithTracing(p Provider, tp trace.TracerProvider) *TracedProvider {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracedProvider{inner: p, tracer: tp.Tracer(tracerName)}
}

// CreateConversation implements Provider.
func (t *TracedProvider) CreateConversation(ctx context.Context, token string) (string, error) {
	ctx, span := t.tracer.Start(ctx, "provider.CreateConversation")
	defer span.End()
	id, err := t.inner.CreateConversation(ctx, token)
	span.SetAttributes(attribute.String("chat.id", id))
	record(span, err)
	return id, err
}

// DeleteConversation implements Provider.
func (t *TracedProvider) DeleteConversation(ctx context.Context, token, chatID string) error {
	ctx, span := t.tracer.Start(ctx, "provider.DeleteConversation",
		trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()
	err := t.inner.DeleteConversation(ctx, token, chatID)
	record(span, err)
	return err
}

// Complete implements Provider.
func (t *TracedProvider) Complete(ctx context.Context, req Request) (*Reply, error) {
	ctx, span := t.tracer.Start(ctx, "provider.Complete", trace.WithAttributes(requestAttrs(req)...))
	defer span.End()
	reply, err := t.inner.Complete(ctx, req)
	if reply != nil {
		span.SetAttributes(attribute.Int("reply.bytes", len(reply.Text)))
	}
	record(span, err)
	return reply, err
}

// Stream implements Provider. The span covers opening the stream only.
func (t *TracedProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	ctx, span := t.tracer.Start(ctx, "provider.Stream", trace.WithAttributes(requestAttrs(req)...))
	defer span.End()
	ch, err := t.inner.Stream(ctx, req)
	record(span, err)
	return ch, err
}

// UploadAttachment implements Provider.
func (t *TracedProvider) UploadAttachment(ctx context.Context, token string, file Upload) (chatbridge.Attachment, error) {
	ctx, span := t.tracer.Start(ctx, "provider.UploadAttachment", trace.WithAttributes(
		attribute.String("upload.kind", file.Kind),
		attribute.String("upload.mime", file.MIMEType),
		attribute.Int("upload.bytes", len(file.Data)),
	))
	defer span.End()
	att, err := t.inner.UploadAttachment(ctx, token, file)
	record(span, err)
	return att, err
}

func requestAttrs(req Request) []attribute.KeyValue {
	if req.Config == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String("chat.id", req.Config.ChatID),
		attribute.String("chat.model", req.Config.ModelName),
		attribute.String("chat.type", string(req.Config.ChatType)),
		attribute.Int("chat.tools", len(req.Config.Tools)),
	}
}

func record(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Compile-time check that TracedProvider implements Provider.
var _ Provider = (*TracedProvider)(nil)
