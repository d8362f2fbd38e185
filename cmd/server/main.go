// Package main is the entrypoint for the ReviewPulse API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/reviewpulse/internal/api"
	"github.com/kiranshivaraju/reviewpulse/internal/api/handler"
	mw "github.com/kiranshivaraju/reviewpulse/internal/api/middleware"
	"github.com/kiranshivaraju/reviewpulse/internal/broker"
	"github.com/kiranshivaraju/reviewpulse/internal/cache"
	"github.com/kiranshivaraju/reviewpulse/internal/config"
	"github.com/kiranshivaraju/reviewpulse/internal/jobs"
	"github.com/kiranshivaraju/reviewpulse/internal/scrape"
	"github.com/kiranshivaraju/reviewpulse/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.RoleServer)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	queue, err := broker.Open(ctx, cfg.Broker, slog.Default())
	if err != nil {
		return fmt.Errorf("open broker: %w", err)
	}
	defer queue.Close()
	slog.Info("broker connected", "consumer", queue.ConsumerName())

	// The rate-limit counters share the broker's pool when both live on the same Redis.
	redisCache := cache.NewRedisCacheFromClient(queue.Channel())
	if cfg.Redis.URL != cfg.Broker.URL {
		redisCache, err = cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()
	}

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected", "shared_with_broker", cfg.Redis.URL == cfg.Broker.URL)

	pgStore := store.NewPostgresStore(pool)
	producer := jobs.NewReviewProducer(queue, scrape.NewCleaner(cfg.Worker.SkipCleaning), slog.Default())
	svc := jobs.NewService(pgStore, producer, slog.Default())

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(cfg.Auth.JWTSecret),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin),

		AllowedOrigins: cfg.Server.AllowedOrigins,

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": pgStore,
			"broker":   queue,
			"cache":    redisCache,
		}),
		SubmitHandler: handler.NewSubmitHandler(svc),
		PollHandler:   handler.NewPollHandler(svc),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
