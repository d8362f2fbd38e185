package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/kiranshivaraju/reviewpulse/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("not a url")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	assert.NoError(t, rc.Ping(context.Background()))
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("ada@example.com", 1)

	for want := int64(1); want <= 3; want++ {
		val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, val)
	}
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("ada@example.com", 2)

	_, err := rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val, "counter should restart after expiry")
}

func TestIncrWithExpiry_DoesNotExtendWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("ada@example.com", 3)

	_, err := rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)
	time.Sleep(600 * time.Millisecond)
	_, err = rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)
	time.Sleep(600 * time.Millisecond)

	val, err := rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val, "later increments must not push the expiry out")
}

// --- Key builders ---

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:ada@example.com:29000000", cache.RateLimitKey("ada@example.com", 29000000))
	assert.NotEqual(t, cache.RateLimitKey("a", 1), cache.RateLimitKey("a", 2))
}
