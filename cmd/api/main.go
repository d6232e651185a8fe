package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-retail-backend/internal/api"
	"github.com/safar/go-retail-backend/internal/auth"
	"github.com/safar/go-retail-backend/internal/cache"
	"github.com/safar/go-retail-backend/internal/config"
	"github.com/safar/go-retail-backend/internal/database"
	"github.com/safar/go-retail-backend/internal/lock"
	"github.com/safar/go-retail-backend/internal/mail"
	"github.com/safar/go-retail-backend/internal/objstore"
	"github.com/safar/go-retail-backend/internal/payment"
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

	slog.Info("connected", "database", "ok", "redis", cfg.Redis.Addr)

	regions := cache.New(rdb)
	tokens := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	mailer := mail.LogMailer{}
	images := objstore.NewMemoryStore()

	var gateway payment.Gateway
	if cfg.Gateway.SecretKey != "" {
		gateway = payment.NewHTTPGateway(cfg.Gateway)
	} else {
		slog.Warn("no gateway secret configured, using in-process fake")
		gateway = payment.NewFakeGateway(cfg.Gateway.WebhookSecret)
	}

	carts := service.NewCartService(db, regions)
	checkout := service.NewCheckoutService(db, gateway)
	finalizer := service.NewFinalizer(db, regions)
	orders := service.NewOrderService(db, regions, mailer)
	catalog := service.NewCatalogService(db, regions, images)
	users := service.NewUserService(db, regions, tokens)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewServer(tokens, gateway, carts, checkout, finalizer, orders, catalog, users).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// In-process reconciler; the standalone worker binary covers
	// deployments that scale the jobs separately. The distributed lock
	// keeps the two arrangements from ever running a job twice.
	reconciler := service.NewReconciler(db, regions, lock.New(rdb), cfg.Worker)
	go reconciler.Run(ctx)

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "err", err)
	}
}
