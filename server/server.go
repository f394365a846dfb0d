// Package server exposes the chat-completions HTTP surface: POST /v1/chat/completions,
// GET /v1/models and a GET / health text.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/skosovsky/chatbridge"
	"github.com/skosovsky/chatbridge/mediafetch"
	"github.com/skosovsky/chatbridge/modelcatalog"
	"github.com/skosovsky/chatbridge/provider"
	"github.com/skosovsky/chatbridge/shaper"
	"github.com/skosovsky/chatbridge/transcript"
)

const (
	tracerName            = "github.com/skosovsky/chatbridge/server"
	defaultCleanupTimeout = 10 * time.Second
	defaultUploadLimit    = 4
)

// Server handles chat-completion requests against one provider. It is safe for concurrent use.
type Server struct {
	provider       provider.Provider
	shaper         *shaper.Shaper
	models         modelcatalog.Source
	loader         *mediafetch.Loader
	logger         *zap.Logger
	tracer         trace.Tracer
	legacyErrors   bool
	configOpts     []chatbridge.Option
	compactOpts    []transcript.Option
	cleanupTimeout time.Duration
	uploadLimit    int

	cleanups sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithShaper replaces the response shaper.
func WithShaper(sh *shaper.Shaper) Option {
	return func(s *Server) {
		if sh != nil {
			s.shaper = sh
		}
	}
}

// WithModels sets the model list source. Default is the embedded catalog.
func WithModels(src modelcatalog.Source) Option {
	return func(s *Server) {
		if src != nil {
			s.models = src
		}
	}
}

// WithAttachments enables uploading the files and images referenced by the last message.
// A nil loader disables attachments, which is the default.
func WithAttachments(l *mediafetch.Loader) Option {
	return func(s *Server) { s.loader = l }
}

// WithLegacyErrors reports request and provider errors as HTTP 200 with a {status, message}
// body instead of the matching 4xx/5xx status.
func WithLegacyErrors(on bool) Option {
	return func(s *Server) { s.legacyErrors = on }
}

// WithConfigOptions passes options to chatbridge.ResolveConfig.
func WithConfigOptions(opts ...chatbridge.Option) Option {
	return func(s *Server) { s.configOpts = append(s.configOpts, opts...) }
}

// WithCompactOptions passes options to transcript.Compact.
func WithCompactOptions(opts ...transcript.Option) Option {
	return func(s *Server) { s.compactOpts = append(s.compactOpts, opts...) }
}

// WithCleanupTimeout bounds each detached conversation delete.
func WithCleanupTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.cleanupTimeout = d
		}
	}
}

// WithTracerProvider sets the tracer provider for request spans. Default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// New returns a Server for p.
func New(p provider.Provider, opts ...Option) *Server {
	s := &Server{
		provider:       p,
		shaper:         shaper.New(),
		models:         modelcatalog.Embedded(),
		logger:         zap.NewNop(),
		tracer:         otel.GetTracerProvider().Tracer(tracerName),
		legacyErrors:   true,
		cleanupTimeout: defaultCleanupTimeout,
		uploadLimit:    defaultUploadLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Hello World") })
	r.GET("/v1/models", s.handleModels)
	r.POST("/v1/chat/completions", s.handleChatCompletions)
	return r
}

// Wait blocks until every detached conversation delete has finished.
func (s *Server) Wait() {
	s.cleanups.Wait()
}

// observe wraps each request in a span and logs its outcome.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, span := s.tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) handleModels(c *gin.Context) {
	models, err := s.models.Models(c.Request.Context())
	if err != nil {
		s.logger.Error("model list unavailable", zap.Error(err))
		s.providerFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": models})
}

// cleanup deletes chatID in the background, detached from the request context.
func (s *Server) cleanup(ctx context.Context, token, chatID string) {
	s.cleanups.Add(1)
	go func() {
		defer s.cleanups.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
		defer cancel()
		if err := s.provider.DeleteConversation(ctx, token, chatID); err != nil {
			s.logger.Warn("conversation cleanup failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}()
}
