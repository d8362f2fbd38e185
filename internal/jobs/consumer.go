package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/reviewpulse/internal/broker"
	"github.com/kiranshivaraju/reviewpulse/internal/mail"
	"github.com/kiranshivaraju/reviewpulse/internal/store"
	"github.com/kiranshivaraju/reviewpulse/internal/summarizer"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

// markFailedTimeout bounds the store write made when a review job is given up.
const markFailedTimeout = 5 * time.Second

// Notifier queues the completion email for a review job.
type Notifier interface {
	NotifyReviewReady(ctx context.Context, job ReviewJob) error
}

// ReviewConsumer summarizes queued review jobs and records the result.
type ReviewConsumer struct {
	store      store.Store
	summarizer models.SummaryProvider
	notifier   Notifier
	timeout    time.Duration
	logger     *slog.Logger
}

func NewReviewConsumer(st store.Store, sp models.SummaryProvider, n Notifier, timeout time.Duration, logger *slog.Logger) *ReviewConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewConsumer{
		store:      st,
		summarizer: sp,
		notifier:   n,
		timeout:    timeout,
		logger:     logger.With("component", "review_consumer", "provider", sp.Name()),
	}
}

// Handle processes one review.queue delivery. A record that is missing or
// already fulfilled is not summarized again, but the requester is still
// notified. When the summarization step fails for good the record is marked
// failed so pollers stop waiting.
func (c *ReviewConsumer) Handle(ctx context.Context, d broker.Delivery) error {
	logger := c.logger.With("message_id", d.ID, "attempt", d.Attempt)

	var job ReviewJob
	if err := decode(d.Body, &job); err != nil {
		logger.Error("discarding review job", "product_id", job.ProductID, "error", err)
		if job.ProductID != "" {
			c.markFailed(ctx, logger, job.ProductID, err)
		}
		return err
	}
	logger = logger.With("product_id", job.ProductID)

	if err := c.summarize(ctx, logger, job); err != nil {
		if errors.Is(err, broker.ErrPermanent) || d.Final() {
			c.markFailed(ctx, logger, job.ProductID, err)
		}
		return err
	}

	if err := c.notifier.NotifyReviewReady(ctx, job); err != nil {
		return fmt.Errorf("queueing email for %s: %w", job.ProductID, err)
	}
	logger.Info("review job processed")
	return nil
}

func (c *ReviewConsumer) summarize(ctx context.Context, logger *slog.Logger, job ReviewJob) error {
	rec, err := c.store.GetByProductID(ctx, job.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("no record for review job, skipping summarization")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading record %s: %w", job.ProductID, err)
	}
	if rec.Status == models.ReviewStatusFulfilled {
		logger.Info("summary already exists, skipping summarization")
		return nil
	}

	sctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	summary, err := c.summarizer.Summarize(sctx, job.Reviews)
	if err != nil {
		err = fmt.Errorf("summarizing %s: %w", job.ProductID, err)
		if errors.Is(err, summarizer.ErrInvalidResponse) {
			return broker.Permanent(err)
		}
		return err
	}
	logger.Info("summary generated", "duration_ms", time.Since(start).Milliseconds())

	if _, err := c.store.MarkFulfilled(ctx, job.ProductID, summary); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("record disappeared before summary was stored")
			return nil
		}
		return fmt.Errorf("storing summary for %s: %w", job.ProductID, err)
	}
	return nil
}

func (c *ReviewConsumer) markFailed(ctx context.Context, logger *slog.Logger, productID string, cause error) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()

	_, err := c.store.MarkFailed(mctx, productID, cause.Error())
	switch {
	case err == nil:
		logger.Warn("review marked failed", "product_id", productID, "reason", cause.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidTransition):
		logger.Info("review not marked failed", "product_id", productID, "error", err)
	default:
		logger.Error("marking review failed", "product_id", productID, "error", err)
	}
}

// Renderer renders a named email template.
type Renderer interface {
	Render(name string, vars map[string]string) (string, error)
}

// EmailConsumer renders queued email jobs and sends them.
type EmailConsumer struct {
	renderer  Renderer
	transport mail.Transport
	timeout   time.Duration
	logger    *slog.Logger
}

func NewEmailConsumer(r Renderer, t mail.Transport, timeout time.Duration, logger *slog.Logger) *EmailConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailConsumer{
		renderer:  r,
		transport: t,
		timeout:   timeout,
		logger:    logger.With("component", "email_consumer"),
	}
}

// Handle processes one email.queue delivery. Send failures are returned so
// the message is redelivered; bad templates and addresses are permanent.
func (c *EmailConsumer) Handle(ctx context.Context, d broker.Delivery) error {
	logger := c.logger.With("message_id", d.ID, "attempt", d.Attempt)

	var job EmailJob
	if err := decode(d.Body, &job); err != nil {
		logger.Error("discarding email job", "error", err)
		return err
	}
	logger = logger.With("to", job.To, "template", job.TemplateName)

	html, err := c.renderer.Render(job.TemplateName, job.TemplateData)
	if err != nil {
		if errors.Is(err, mail.ErrUnknownTemplate) {
			return broker.Permanent(err)
		}
		return err
	}

	sctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	err = c.transport.Send(sctx, mail.Message{To: job.To, Subject: job.Subject, HTML: html})
	if err != nil {
		if errors.Is(err, mail.ErrInvalidMessage) {
			return broker.Permanent(err)
		}
		return fmt.Errorf("sending email to %s: %w", job.To, err)
	}
	logger.Info("email sent")
	return nil
}

// withTimeout applies d to ctx unless d is zero.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
