package store

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid review status transition")
	ErrInvalidRecord     = errors.New("review record violates a constraint")
)

// Store is the data access interface for review summaries. Every mutation is
// a single atomic statement; callers never read-modify-write a record.
type Store interface {
	Ping(ctx context.Context) error

	// CreateIfAbsent inserts a pending record or returns the existing one.
	// An existing failed record is reset to pending with rec's metadata;
	// pending and fulfilled records are left untouched. The bool reports
	// whether this call opened a request, by insert or by reset.
	CreateIfAbsent(ctx context.Context, rec *models.ReviewRecord) (*models.ReviewRecord, bool, error)
	GetByProductID(ctx context.Context, productID string) (*models.ReviewRecord, error)

	MarkFulfilled(ctx context.Context, productID, summary string) (*models.ReviewRecord, error)
	MarkFailed(ctx context.Context, productID, reason string) (*models.ReviewRecord, error)

	// FailStalePending fails every pending record last updated before olderThan.
	FailStalePending(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}

// validTransitions lists, per target status, the statuses a record may be in
// beforehand. Fulfilled may be rewritten by a duplicate delivery.
var validTransitions = map[string][]string{
	models.ReviewStatusFulfilled: {models.ReviewStatusPending, models.ReviewStatusFailed, models.ReviewStatusFulfilled},
	models.ReviewStatusFailed:    {models.ReviewStatusPending},
}

// AllowedFrom returns the statuses from which a record may move to status.
func AllowedFrom(status string) []string {
	return validTransitions[status]
}

// CanTransition reports whether a record in from may move to to.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}
