// Package main is the entrypoint for the ReviewPulse email worker. It
// consumes email.queue, renders each template and hands the message to the
// configured mail transport.
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
	"github.com/kiranshivaraju/reviewpulse/internal/mail"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("email worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.RoleEmailWorker)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"transport", cfg.Mail.Transport,
		"max_attempts", cfg.Worker.EmailMaxAttempts,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer, err := mail.NewRenderer()
	if err != nil {
		return fmt.Errorf("load email templates: %w", err)
	}

	transport, err := mail.NewTransport(cfg.Mail, slog.Default())
	if err != nil {
		return fmt.Errorf("create mail transport: %w", err)
	}

	queue, err := broker.Open(ctx, cfg.Broker, slog.Default())
	if err != nil {
		return fmt.Errorf("open broker: %w", err)
	}
	defer queue.Close()
	slog.Info("broker connected", "consumer", queue.ConsumerName())

	consumer := jobs.NewEmailConsumer(renderer, transport, cfg.Mail.Timeout, slog.Default())
	opts := broker.OptionsFromConfig(cfg.Broker, cfg.Worker.EmailMaxAttempts)

	if err := queue.Consume(ctx, broker.EmailQueue, opts, consumer.Handle); err != nil {
		return err
	}
	slog.Info("email worker stopped gracefully")
	return nil
}
