// Package main runs the background worker: queued access refreshes and the lapsed-period sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rentflow/backend/config"
	"github.com/rentflow/backend/internal/access"
	"github.com/rentflow/backend/internal/auth"
	"github.com/rentflow/backend/internal/realtime"
	"github.com/rentflow/backend/internal/worker"
	"github.com/rentflow/backend/pkg/database"
	"github.com/rentflow/backend/pkg/queue"
	"github.com/rentflow/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	authRepo := auth.NewRepository(pool)
	subRepo := access.NewRepository(pool)
	accessSvc := access.NewService(subRepo, authRepo, access.NewRedisCache(rdb.Client, cfg.Access.CacheTTL),
		access.Policies{access.NewMasterAdminPolicy(cfg.Access.MasterAdminEmails...)},
		access.ServiceConfig{
			FetchTimeout:       cfg.Access.FetchTimeout,
			BreakerFailures:    cfg.Access.BreakerFailures,
			BreakerOpenTimeout: cfg.Access.BreakerOpenTimeout,
		}, logger)
	dispatcher := access.NewDispatcher(accessSvc, logger)
	dispatcher.OnAuthStateChange(realtime.PublishAccessListener(realtime.NewRedisPubSub(rdb.Client, logger), logger))

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewAccessProcessor(dispatcher, authRepo, subRepo, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go processor.RunSweeper(workerCtx, cfg.Access.SweepInterval, cfg.Access.CacheTTL)
	logger.Info("worker started", zap.Duration("sweep_interval", cfg.Access.SweepInterval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
