package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/reviewpulse/internal/store"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("reviewpulse_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newRecord(productID string) *models.ReviewRecord {
	return &models.ReviewRecord{
		ProductID: productID,
		Title:     "Trail Runner 2",
		Link:      "https://shop.example.com/p/" + productID,
		Reviews:   []string{"Runs small but comfortable.", "Great grip on wet rock."},
	}
}

// --- Transition table ---

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.ReviewStatusPending, models.ReviewStatusFulfilled, true},
		{models.ReviewStatusFailed, models.ReviewStatusFulfilled, true},
		{models.ReviewStatusFulfilled, models.ReviewStatusFulfilled, true},
		{models.ReviewStatusPending, models.ReviewStatusFailed, true},
		{models.ReviewStatusFulfilled, models.ReviewStatusFailed, false},
		{models.ReviewStatusFailed, models.ReviewStatusFailed, false},
		{models.ReviewStatusFulfilled, models.ReviewStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, store.CanTransition(tt.from, tt.to))
		})
	}
}

// --- CreateIfAbsent ---

func TestCreateIfAbsent_Insert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	rec, inserted, err := s.CreateIfAbsent(context.Background(), newRecord("B000123"))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "B000123", rec.ProductID)
	assert.Equal(t, models.ReviewStatusPending, rec.Status)
	assert.Nil(t, rec.Summary)
	assert.Equal(t, []string{"Runs small but comfortable.", "Great grip on wet rock."}, rec.Reviews)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestCreateIfAbsent_ExistingKeepsMetadata(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, _, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)

	second := newRecord("B000123")
	second.Title = "Different title"
	second.Reviews = []string{"other"}
	rec, inserted, err := s.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "Trail Runner 2", rec.Title)
	assert.Len(t, rec.Reviews, 2)
}

func TestCreateIfAbsent_ConcurrentSubmitsCreateOneRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.CreateIfAbsent(context.Background(), newRecord("RACE1"))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
}

func TestCreateIfAbsent_ResetsFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, _, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)
	_, err = s.MarkFailed(ctx, "B000123", "summarizer unavailable")
	require.NoError(t, err)

	retry := newRecord("B000123")
	retry.Title = "Trail Runner 2 GTX"
	retry.Reviews = []string{"Dry feet after a creek crossing."}
	rec, opened, err := s.CreateIfAbsent(ctx, retry)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Equal(t, models.ReviewStatusPending, rec.Status)
	assert.Nil(t, rec.ErrorMessage)
	assert.Equal(t, "Trail Runner 2 GTX", rec.Title)
	assert.Equal(t, []string{"Dry feet after a creek crossing."}, rec.Reviews)

	got, err := s.GetByProductID(ctx, "B000123")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dry feet after a creek crossing."}, got.Reviews)
}

func TestCreateIfAbsent_PendingNotReopened(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	first, opened, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)
	require.True(t, opened)

	rec, opened, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)
	assert.False(t, opened)
	assert.Equal(t, models.ReviewStatusPending, rec.Status)
	assert.Equal(t, first.UpdatedAt, rec.UpdatedAt)
}

func TestCreateIfAbsent_FulfilledUntouched(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, _, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)
	_, err = s.MarkFulfilled(ctx, "B000123", "Comfortable, sizes small.")
	require.NoError(t, err)

	rec, inserted, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, models.ReviewStatusFulfilled, rec.Status)
	require.NotNil(t, rec.Summary)
	assert.Equal(t, "Comfortable, sizes small.", *rec.Summary)
}

func TestCreateIfAbsent_InvalidProductID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, _, err := s.CreateIfAbsent(context.Background(), newRecord(strings.Repeat("x", 200)))
	assert.ErrorIs(t, err, store.ErrInvalidRecord)
}

// --- GetByProductID ---

func TestGetByProductID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, _, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)

	rec, err := s.GetByProductID(ctx, "B000123")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/p/B000123", rec.Link)
	assert.Equal(t, models.ReviewStatusPending, rec.Status)
}

func TestGetByProductID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetByProductID(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- MarkFulfilled / MarkFailed ---

func TestMarkFulfilled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	created, _, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)

	rec, err := s.MarkFulfilled(ctx, "B000123", "Comfortable, sizes small.")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusFulfilled, rec.Status)
	require.NotNil(t, rec.Summary)
	assert.Equal(t, "Comfortable, sizes small.", *rec.Summary)
	assert.False(t, rec.UpdatedAt.Before(created.UpdatedAt))

	// A duplicate delivery may write the summary again.
	rec, err = s.MarkFulfilled(ctx, "B000123", "Second pass.")
	require.NoError(t, err)
	assert.Equal(t, "Second pass.", *rec.Summary)
}

func TestMarkFulfilled_FromFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, _, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)
	_, err = s.MarkFailed(ctx, "B000123", "stale")
	require.NoError(t, err)

	rec, err := s.MarkFulfilled(ctx, "B000123", "Late but done.")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusFulfilled, rec.Status)
	assert.Nil(t, rec.ErrorMessage)
}

func TestMarkFulfilled_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.MarkFulfilled(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, _, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)

	rec, err := s.MarkFailed(ctx, "B000123", "summarizer unavailable")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, "summarizer unavailable", *rec.ErrorMessage)
}

func TestMarkFailed_DoesNotOverwriteFulfilled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, _, err := s.CreateIfAbsent(ctx, newRecord("B000123"))
	require.NoError(t, err)
	_, err = s.MarkFulfilled(ctx, "B000123", "done")
	require.NoError(t, err)

	_, err = s.MarkFailed(ctx, "B000123", "late failure")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	rec, err := s.GetByProductID(ctx, "B000123")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusFulfilled, rec.Status)
}

func TestMarkFailed_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.MarkFailed(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- FailStalePending ---

func TestFailStalePending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	for _, id := range []string{"OLD1", "OLD2", "FRESH", "DONE"} {
		_, _, err := s.CreateIfAbsent(ctx, newRecord(id))
		require.NoError(t, err)
	}
	_, err := s.MarkFulfilled(ctx, "DONE", "ok")
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`UPDATE review_summaries SET updated_at = now() - interval '2 hours' WHERE product_id IN ('OLD1', 'OLD2', 'DONE')`)
	require.NoError(t, err)

	n, err := s.FailStalePending(ctx, time.Now().Add(-time.Hour), "timed out")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	old, err := s.GetByProductID(ctx, "OLD1")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusFailed, old.Status)
	assert.Equal(t, "timed out", *old.ErrorMessage)

	fresh, err := s.GetByProductID(ctx, "FRESH")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusPending, fresh.Status)

	done, err := s.GetByProductID(ctx, "DONE")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusFulfilled, done.Status)
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	assert.NoError(t, s.Ping(context.Background()))
}
