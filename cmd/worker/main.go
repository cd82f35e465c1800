package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"faceguard/internal/attendance"
	"faceguard/internal/config"
	"faceguard/internal/enrollment"
	"faceguard/internal/journal"
	"faceguard/internal/queue"
	"faceguard/internal/store"
)

// Worker consumes the journal queue and persists ledger and enrollment
// mutations to Postgres.
func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.QueueBackend != "redis" {
		logger.Error("worker needs QUEUE_BACKEND=redis; the memory backend is consumed inside the api process")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN())
	if err != nil {
		logger.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", "addr", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	applier := journal.NewApplier(attendance.NewRepository(db.Client), enrollment.NewRepository(db.Client), logger)

	logger.Info("worker started, waiting for messages", "key", cfg.QueueKey)
	if err := applier.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
