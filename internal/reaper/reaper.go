// Package reaper fails review records that have been pending too long.
//
// A record stays pending while its review job is queued or being retried.
// If the job is lost (published but never consumed, or dropped by a crashed
// worker after its retries), nothing else would ever move the record on, so
// pollers would wait forever. The reaper bounds that wait.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/kiranshivaraju/reviewpulse/internal/config"
)

// StaleReason is stored as the error message of reaped records.
const StaleReason = "summary generation timed out, please resubmit"

// Store is the slice of the result store the reaper needs.
type Store interface {
	FailStalePending(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}

// Reaper periodically fails stale pending records.
type Reaper struct {
	store  Store
	cfg    config.ReaperConfig
	logger *slog.Logger
	now    func() time.Time
}

func New(st Store, cfg config.ReaperConfig, logger *slog.Logger) (*Reaper, error) {
	if st == nil {
		return nil, errors.New("reaper store is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("reaper interval must be positive, got %s", cfg.Interval)
	}
	if cfg.PendingMaxAge <= 0 {
		return nil, fmt.Errorf("pending max age must be positive, got %s", cfg.PendingMaxAge)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		store:  st,
		cfg:    cfg,
		logger: logger.With("component", "reaper"),
		now:    time.Now,
	}, nil
}

// Run sweeps once after a short random delay, then every interval, until ctx
// is cancelled. Sweep errors are logged and do not stop the loop.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper",
		"interval", r.cfg.Interval,
		"pending_max_age", r.cfg.PendingMaxAge,
	)

	// Spread sweeps from workers that start together.
	if !r.sleep(ctx, jitter(r.cfg.Interval)) {
		return nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reaper stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep fails every pending record not updated within the max age.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.cfg.PendingMaxAge)
	n, err := r.store.FailStalePending(ctx, cutoff, StaleReason)
	if err != nil {
		return 0, fmt.Errorf("failing stale pending records: %w", err)
	}
	if n > 0 {
		r.logger.WarnContext(ctx, "failed stale pending records", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (r *Reaper) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// jitter returns a random delay below a tenth of interval.
func jitter(interval time.Duration) time.Duration {
	maxJitter := int64(interval / 10)
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(maxJitter))
}
