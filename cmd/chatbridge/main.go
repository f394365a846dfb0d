// Command chatbridge serves the chat-completions API in front of Yuanbao.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skosovsky/chatbridge/internal/config"
	"github.com/skosovsky/chatbridge/mediafetch"
	"github.com/skosovsky/chatbridge/modelcatalog"
	"github.com/skosovsky/chatbridge/provider"
	"github.com/skosovsky/chatbridge/provider/yuanbao"
	"github.com/skosovsky/chatbridge/server"
	"github.com/skosovsky/chatbridge/shaper"
	"github.com/skosovsky/chatbridge/transcript"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", "", "path to config.yaml (default: search . and $XDG_CONFIG_HOME/chatbridge)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	models, err := modelSource(cfg.Models)
	if err != nil {
		return err
	}

	var p provider.Provider = yuanbao.New(cfg.Provider.YuanbaoConfig(), yuanbao.WithLogger(logger.Named("yuanbao")))
	p = provider.WithTracing(provider.WithRetry(p, cfg.Provider.MaxRetries), nil)

	opts := []server.Option{
		server.WithLogger(logger.Named("server")),
		server.WithModels(models),
		server.WithLegacyErrors(cfg.Server.LegacyErrors),
		server.WithShaper(shaper.New(shaper.WithLogger(logger.Named("shaper")))),
		server.WithCompactOptions(transcript.WithNonTextPolicy(transcript.ParseNonTextPolicy(cfg.Transcript.NonTextParts))),
	}
	if cfg.Attachments.Enabled {
		opts = append(opts, server.WithAttachments(mediafetch.New(mediafetch.WithMaxBytes(cfg.Attachments.MaxBytes))))
	}
	srv := server.New(p, opts...)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.Bool("attachments", cfg.Attachments.Enabled))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("chatbridge: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.Wait()
		return err
	})
	return g.Wait()
}

// modelSource layers the configured catalogs over the embedded one.
func modelSource(cfg config.ModelsConfig) (modelcatalog.Source, error) {
	var sources []modelcatalog.Source
	if cfg.URL != "" {
		h, err := modelcatalog.NewHTTPSource(cfg.URL, modelcatalog.WithTTL(cfg.TTL))
		if err != nil {
			return nil, err
		}
		sources = append(sources, h)
	}
	if cfg.File != "" {
		sources = append(sources, modelcatalog.NewFileSource(cfg.File))
	}
	return modelcatalog.Fallback(append(sources, modelcatalog.Embedded())...), nil
}
