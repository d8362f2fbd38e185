package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/reviewpulse/internal/broker"
	"github.com/kiranshivaraju/reviewpulse/internal/mail"
)

// Cleaner normalizes scraped review payloads.
type Cleaner interface {
	Clean(raw []string) ([]string, error)
}

// ReviewProducer cleans review payloads and queues them on review.queue.
type ReviewProducer struct {
	pub     Publisher
	cleaner Cleaner
	logger  *slog.Logger
}

func NewReviewProducer(pub Publisher, cleaner Cleaner, logger *slog.Logger) *ReviewProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewProducer{pub: pub, cleaner: cleaner, logger: logger.With("component", "review_producer")}
}

// Enqueue publishes job with its reviews cleaned. The caller decides what a
// failure means for the stored record.
func (p *ReviewProducer) Enqueue(ctx context.Context, job ReviewJob) error {
	cleaned, err := p.cleaner.Clean(job.Reviews)
	if err != nil {
		return fmt.Errorf("cleaning reviews for %s: %w", job.ProductID, err)
	}
	job.Reviews = cleaned

	if err := validate.Struct(job); err != nil {
		return fmt.Errorf("invalid review job for %s: %w", job.ProductID, err)
	}

	id, err := p.pub.Publish(ctx, broker.ReviewQueue, job)
	if err != nil {
		return err
	}
	p.logger.Info("review job queued", "product_id", job.ProductID, "message_id", id, "reviews", len(cleaned))
	return nil
}

// EmailProducer queues notification emails on email.queue.
type EmailProducer struct {
	pub    Publisher
	logger *slog.Logger
}

func NewEmailProducer(pub Publisher, logger *slog.Logger) *EmailProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailProducer{pub: pub, logger: logger.With("component", "email_producer")}
}

// NotifyReviewReady queues the "summary ready" email for the requester of job.
func (p *EmailProducer) NotifyReviewReady(ctx context.Context, job ReviewJob) error {
	email := EmailJob{
		To:           job.UserEmail,
		Subject:      mail.SubjectReviewReady,
		TemplateName: mail.TemplateReviewReady,
		TemplateData: map[string]string{
			"user":          job.UserFirstName,
			"product_title": job.Title,
			"product_link":  job.Link,
		},
	}
	return p.Enqueue(ctx, email)
}

// Enqueue publishes email after validating it.
func (p *EmailProducer) Enqueue(ctx context.Context, email EmailJob) error {
	if err := validate.Struct(email); err != nil {
		return fmt.Errorf("invalid email job: %w", err)
	}
	id, err := p.pub.Publish(ctx, broker.EmailQueue, email)
	if err != nil {
		return err
	}
	p.logger.Info("email job queued", "to", email.To, "template", email.TemplateName, "message_id", id)
	return nil
}
