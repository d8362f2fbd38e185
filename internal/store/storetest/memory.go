// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kiranshivaraju/reviewpulse/internal/store"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

// MemoryStore is a concurrency-safe store.Store backed by a map. Each method
// holds the lock for its whole body, matching the single-statement atomicity
// of the Postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.ReviewRecord

	// Err, when set, is returned by every method.
	Err error
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.ReviewRecord)}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}

func (m *MemoryStore) CreateIfAbsent(_ context.Context, rec *models.ReviewRecord) (*models.ReviewRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, false, m.Err
	}

	if existing, ok := m.records[rec.ProductID]; ok {
		if existing.Status != models.ReviewStatusFailed {
			return clone(existing), false, nil
		}
		existing.Title = rec.Title
		existing.Link = rec.Link
		existing.Reviews = append([]string{}, rec.Reviews...)
		existing.Status = models.ReviewStatusPending
		existing.ErrorMessage = nil
		existing.UpdatedAt = m.now()
		m.records[rec.ProductID] = existing
		return clone(existing), true, nil
	}

	now := m.now()
	r := models.ReviewRecord{
		ProductID: rec.ProductID,
		Title:     rec.Title,
		Link:      rec.Link,
		Reviews:   append([]string{}, rec.Reviews...),
		Status:    models.ReviewStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.records[r.ProductID] = r
	return clone(r), true, nil
}

func (m *MemoryStore) GetByProductID(_ context.Context, productID string) (*models.ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.records[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(r), nil
}

func (m *MemoryStore) MarkFulfilled(_ context.Context, productID, summary string) (*models.ReviewRecord, error) {
	return m.transition(productID, models.ReviewStatusFulfilled, func(r *models.ReviewRecord) {
		r.Summary = &summary
		r.ErrorMessage = nil
	})
}

func (m *MemoryStore) MarkFailed(_ context.Context, productID, reason string) (*models.ReviewRecord, error) {
	return m.transition(productID, models.ReviewStatusFailed, func(r *models.ReviewRecord) {
		r.ErrorMessage = &reason
	})
}

func (m *MemoryStore) transition(productID, to string, apply func(*models.ReviewRecord)) (*models.ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.records[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !store.CanTransition(r.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, r.Status, to)
	}
	apply(&r)
	r.Status = to
	r.UpdatedAt = m.now()
	m.records[productID] = r
	return clone(r), nil
}

func (m *MemoryStore) FailStalePending(_ context.Context, olderThan time.Time, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for id, r := range m.records {
		if r.Status == models.ReviewStatusPending && r.UpdatedAt.Before(olderThan) {
			msg := reason
			r.Status = models.ReviewStatusFailed
			r.ErrorMessage = &msg
			r.UpdatedAt = m.now()
			m.records[id] = r
			n++
		}
	}
	return n, nil
}

// Put stores rec as-is, bypassing transition rules.
func (m *MemoryStore) Put(rec models.ReviewRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ProductID] = rec
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func clone(r models.ReviewRecord) *models.ReviewRecord {
	out := r
	out.Reviews = append([]string{}, r.Reviews...)
	if r.Summary != nil {
		s := *r.Summary
		out.Summary = &s
	}
	if r.ErrorMessage != nil {
		e := *r.ErrorMessage
		out.ErrorMessage = &e
	}
	return &out
}

var _ store.Store = (*MemoryStore)(nil)
