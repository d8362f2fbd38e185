package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/reviewpulse/internal/store"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

// enqueueFailedTimeout bounds the store write made when queueing fails.
const enqueueFailedTimeout = 5 * time.Second

// ErrSummaryFailed is returned by Poll for a record whose generation failed.
var ErrSummaryFailed = errors.New("summary generation failed")

// SubmitOutcome tells the caller what Submit did.
type SubmitOutcome int

const (
	// Submitted means a review job was queued.
	Submitted SubmitOutcome = iota
	// AlreadyExists means the summary is already available and nothing was queued.
	AlreadyExists
)

// SubmitRequest is the scraped payload for one product.
type SubmitRequest struct {
	ProductID string
	Title     string
	Link      string
	Reviews   []string
}

// PollResult is the current state of one product's summary.
type PollResult struct {
	Status  string
	Summary string
}

// Enqueuer queues a review job.
type Enqueuer interface {
	Enqueue(ctx context.Context, job ReviewJob) error
}

// Service implements submit and poll on top of the store and the review queue.
type Service struct {
	store    store.Store
	producer Enqueuer
	logger   *slog.Logger
}

func NewService(st store.Store, producer Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, producer: producer, logger: logger.With("component", "review_service")}
}

// Submit records a pending summary request for req.ProductID unless one
// exists, then queues a review job built from the stored record. A failed
// record is reopened with req's metadata. A fulfilled record is a cache hit
// and queues nothing. If the job cannot be queued the error is returned, and
// the record is marked failed when this call opened it; a request that was
// already pending keeps its earlier job.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, who models.Identity) (SubmitOutcome, error) {
	rec, opened, err := s.store.CreateIfAbsent(ctx, &models.ReviewRecord{
		ProductID: req.ProductID,
		Title:     req.Title,
		Link:      req.Link,
		Reviews:   req.Reviews,
	})
	if err != nil {
		return 0, fmt.Errorf("creating record %s: %w", req.ProductID, err)
	}

	logger := s.logger.With("product_id", rec.ProductID, "opened", opened)
	if rec.Status == models.ReviewStatusFulfilled {
		logger.Info("summary already exists")
		return AlreadyExists, nil
	}

	job := ReviewJob{
		ProductID:     rec.ProductID,
		Title:         rec.Title,
		Link:          rec.Link,
		Reviews:       rec.Reviews,
		UserEmail:     who.Email,
		UserFirstName: who.FirstName,
	}
	if err := s.producer.Enqueue(ctx, job); err != nil {
		logger.Error("queueing review job", "error", err)
		if opened {
			s.failRecord(ctx, logger, rec.ProductID, err)
		}
		return 0, fmt.Errorf("queueing review job %s: %w", rec.ProductID, err)
	}

	logger.Info("summary requested")
	return Submitted, nil
}

func (s *Service) failRecord(ctx context.Context, logger *slog.Logger, productID string, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueFailedTimeout)
	defer cancel()

	if _, err := s.store.MarkFailed(fctx, productID, cause.Error()); err != nil {
		logger.Error("marking review failed", "error", err)
	}
}

// Poll reports the state of productID. It returns store.ErrNotFound for an
// unknown product and ErrSummaryFailed for a failed one.
func (s *Service) Poll(ctx context.Context, productID string) (*PollResult, error) {
	rec, err := s.store.GetByProductID(ctx, productID)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case models.ReviewStatusPending:
		return &PollResult{Status: rec.Status}, nil
	case models.ReviewStatusFailed:
		return nil, ErrSummaryFailed
	case models.ReviewStatusFulfilled:
		res := &PollResult{Status: rec.Status}
		if rec.Summary != nil {
			res.Summary = *rec.Summary
		}
		return res, nil
	default:
		return nil, fmt.Errorf("record %s has unknown status %q", productID, rec.Status)
	}
}
