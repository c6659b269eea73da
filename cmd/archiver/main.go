// cmd/archiver/main.go

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/scribble/internal/cache"
	"github.com/jason-s-yu/scribble/internal/config"
	"github.com/jason-s-yu/scribble/internal/database"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database unavailable")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.WithError(err).Fatal("schema setup failed")
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	a := NewArchiver(
		cache.NewEventQueue(rdb, cfg.RoomEventQueue),
		database.NewRoomEvents(pool),
		cfg.ArchiverBatchSize,
		cfg.ArchiverFlushInterval,
		logger,
	)

	logger.WithField("queue", cfg.RoomEventQueue).Info("scribble-archiver started")
	if err := a.Run(ctx); err != nil {
		logger.WithError(err).Error("archiver stopped")
		os.Exit(1)
	}
	logger.Info("scribble-archiver shutting down")
}
