package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const recordColumns = `product_id, title, link, reviews, summary, status, error_message, created_at, updated_at`

func scanRecord(row pgx.Row) (*models.ReviewRecord, error) {
	var r models.ReviewRecord
	if err := row.Scan(&r.ProductID, &r.Title, &r.Link, &r.Reviews, &r.Summary,
		&r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if r.Reviews == nil {
		r.Reviews = []string{}
	}
	return &r, nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, rec *models.ReviewRecord) (*models.ReviewRecord, bool, error) {
	reviews := rec.Reviews
	if reviews == nil {
		reviews = []string{}
	}
	now := time.Now().UTC()

	// The conflict update only fires for a failed row, so a returned row
	// means this call opened the request. Any other existing row is read back.
	out, err := scanRecord(s.pool.QueryRow(ctx,
		`INSERT INTO review_summaries (product_id, title, link, reviews, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'pending', $5, $5)
		 ON CONFLICT (product_id) DO UPDATE SET
		   title = EXCLUDED.title,
		   link = EXCLUDED.link,
		   reviews = EXCLUDED.reviews,
		   status = 'pending',
		   error_message = NULL,
		   updated_at = EXCLUDED.updated_at
		 WHERE review_summaries.status = 'failed'
		 RETURNING `+recordColumns,
		rec.ProductID, rec.Title, rec.Link, reviews, now,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := s.GetByProductID(ctx, rec.ProductID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case err != nil:
		if isConstraintError(err) {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return nil, false, fmt.Errorf("create review record: %w", err)
	}
	return out, true, nil
}

func (s *PostgresStore) GetByProductID(ctx context.Context, productID string) (*models.ReviewRecord, error) {
	out, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM review_summaries WHERE product_id = $1`, productID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review record: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkFulfilled(ctx context.Context, productID, summary string) (*models.ReviewRecord, error) {
	out, err := scanRecord(s.pool.QueryRow(ctx,
		`UPDATE review_summaries
		 SET summary = $2, status = 'fulfilled', error_message = NULL, updated_at = $3
		 WHERE product_id = $1 AND status = ANY($4)
		 RETURNING `+recordColumns,
		productID, summary, time.Now().UTC(), AllowedFrom(models.ReviewStatusFulfilled),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionError(ctx, productID, models.ReviewStatusFulfilled)
	}
	if err != nil {
		return nil, fmt.Errorf("mark review fulfilled: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, productID, reason string) (*models.ReviewRecord, error) {
	out, err := scanRecord(s.pool.QueryRow(ctx,
		`UPDATE review_summaries
		 SET status = 'failed', error_message = $2, updated_at = $3
		 WHERE product_id = $1 AND status = ANY($4)
		 RETURNING `+recordColumns,
		productID, reason, time.Now().UTC(), AllowedFrom(models.ReviewStatusFailed),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionError(ctx, productID, models.ReviewStatusFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("mark review failed: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FailStalePending(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_summaries
		 SET status = 'failed', error_message = $2, updated_at = $3
		 WHERE status = 'pending' AND updated_at < $1`,
		olderThan, reason, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("fail stale pending reviews: %w", err)
	}
	return tag.RowsAffected(), nil
}

// transitionError explains why a guarded UPDATE matched no row.
func (s *PostgresStore) transitionError(ctx context.Context, productID, to string) error {
	var current string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM review_summaries WHERE product_id = $1`, productID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get review status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
}

// isConstraintError reports whether err is a check or length violation on input data.
func isConstraintError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.CheckViolation ||
			pgErr.Code == pgerrcode.StringDataRightTruncationDataException ||
			pgErr.Code == pgerrcode.NotNullViolation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
