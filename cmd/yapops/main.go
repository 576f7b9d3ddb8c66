package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/25kamalesh/YapOps/internal/metrics"
	"github.com/25kamalesh/YapOps/internal/server"
	"github.com/25kamalesh/YapOps/internal/store"
	"github.com/25kamalesh/YapOps/pkg/config"
	"github.com/25kamalesh/YapOps/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := newStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize message store", slog.Any("error", err))
		os.Exit(1)
	}

	app := server.NewApp(logger, ctx, cfg, st, metrics.New())
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

func newStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		return store.NewRedis(ctx, cfg.Store.RedisAddr, logger)
	default:
		return store.NewMemory(logger), nil
	}
}
