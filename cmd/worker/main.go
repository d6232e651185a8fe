// The worker runs the reconciliation jobs on their own, for deployments
// that keep periodic work out of the API replicas. Leadership per job
// comes from the shared distributed lock, so running both the worker
// and in-process reconcilers is safe.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/config"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/lock"
	"github.com/safar/go-retail-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reconciler := service.NewReconciler(db, cache.New(rdb), lock.New(rdb), cfg.Worker)

	slog.Info("reconciliation worker starting")
	reconciler.Run(ctx)
}
