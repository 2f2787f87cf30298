// Package main runs the item feed server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/itemfeed/internal/config"
	"github.com/vyrodovalexey/itemfeed/internal/server"
	"github.com/vyrodovalexey/itemfeed/internal/source"
	"github.com/vyrodovalexey/itemfeed/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "itemfeed: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "itemfeed: building logger: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	_ = logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the listener fails, then shuts the
// server down within cfg.ShutdownTimeout.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("configuration loaded", configFields(cfg)...)

	itemStore := newItemStore(cfg, logger)
	if cfg.RefreshOnStart {
		go itemStore.Refresh(ctx)
	}

	srv := server.New(cfg, logger, itemStore)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
		return err
	case <-ctx.Done():
		logger.Info("stopping", zap.NamedError("cause", context.Cause(ctx)))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	if err := <-serveErr; err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func configFields(cfg *config.Config) []zap.Field {
	return []zap.Field{
		zap.String("address", cfg.Address()),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("source_url", cfg.SourceURL),
		zap.Duration("source_timeout", cfg.SourceTimeout),
		zap.Bool("refresh_on_start", cfg.RefreshOnStart),
		zap.Bool("discard_stale", cfg.DiscardStale),
	}
}

// newItemStore builds the HTTP item source and the store on top of it.
func newItemStore(cfg *config.Config, logger *zap.Logger) *store.ItemStore {
	src := source.NewHTTPSource(cfg.SourceURL,
		source.WithTimeout(cfg.SourceTimeout),
		source.WithLogger(logger.Named("source")),
	)

	var opts []store.Option
	if cfg.DiscardStale {
		opts = append(opts, store.WithDiscardStale())
	}

	return store.New(src, logger.Named("store"), opts...)
}

// newLogger returns a JSON production logger at level. Unknown levels fall
// back to info.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.MessageKey = "message"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder

	return zc.Build(zap.Fields(zap.String("service", "itemfeed")))
}
