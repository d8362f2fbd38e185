// Package main is the entrypoint for the ReviewPulse review worker. It
// consumes review.queue, summarizes each product's reviews and queues the
// completion email. It also runs the reaper that fails stale pending records.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/reviewpulse/internal/broker"
	"github.com/kiranshivaraju/reviewpulse/internal/config"
	"github.com/kiranshivaraju/reviewpulse/internal/jobs"
	"github.com/kiranshivaraju/reviewpulse/internal/reaper"
	"github.com/kiranshivaraju/reviewpulse/internal/store"
	"github.com/kiranshivaraju/reviewpulse/internal/summarizer"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("review worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.RoleReviewWorker)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"provider", cfg.Summarizer.Provider,
		"max_attempts", cfg.Worker.ReviewMaxAttempts,
		"concurrency", cfg.Broker.Concurrency,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	queue, err := broker.Open(ctx, cfg.Broker, slog.Default())
	if err != nil {
		return fmt.Errorf("open broker: %w", err)
	}
	defer queue.Close()
	slog.Info("broker connected", "consumer", queue.ConsumerName())

	provider, err := summarizer.NewProvider(ctx, cfg.Summarizer)
	if err != nil {
		return fmt.Errorf("create summarizer: %w", err)
	}
	slog.Info("summarizer initialized", "provider", provider.Name())

	pgStore := store.NewPostgresStore(pool)
	sweeper, err := reaper.New(pgStore, cfg.Reaper, slog.Default())
	if err != nil {
		return fmt.Errorf("create reaper: %w", err)
	}

	consumer := jobs.NewReviewConsumer(
		pgStore,
		provider,
		jobs.NewEmailProducer(queue, slog.Default()),
		cfg.Summarizer.Timeout,
		slog.Default(),
	)
	opts := broker.OptionsFromConfig(cfg.Broker, cfg.Worker.ReviewMaxAttempts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.Consume(gctx, broker.ReviewQueue, opts, consumer.Handle)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("review worker stopped gracefully")
	return nil
}
