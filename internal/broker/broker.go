// Package broker implements the durable job queues on Redis Streams.
//
// Each queue is a stream with a single consumer group. Producers XADD a JSON
// body; consumers read through the group and must XACK explicitly. Entries a
// consumer read but never acknowledged stay in the group's pending list and
// are reclaimed by any consumer once they have been idle for the visibility
// timeout, which gives at-least-once delivery across worker crashes.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewpulse/internal/config"
	"github.com/redis/go-redis/v9"
)

// Queue names a durable stream shared by producers and consumers.
type Queue string

const (
	ReviewQueue Queue = "review.queue"
	EmailQueue  Queue = "email.queue"
)

// Queues is the full topology declared by every process on startup.
var Queues = []Queue{ReviewQueue, EmailQueue}

// Group returns the consumer group name for q.
func (q Queue) Group() string { return string(q) + ".workers" }

// DeadLetter returns the stream that receives messages q gave up on.
func (q Queue) DeadLetter() string { return string(q) + ".dead" }

const (
	fieldBody        = "body"
	fieldPublishedAt = "published_at"
	fieldReason      = "reason"
	fieldSourceID    = "source_id"
	fieldAttempts    = "attempts"
)

// Client owns one Redis connection pool used as the broker channel. It is
// built once in each process's main and passed to producers and consumers.
type Client struct {
	rdb      redis.UniversalClient
	consumer string
	logger   *slog.Logger
}

// Open connects to the broker, verifies connectivity and declares the queue
// topology. The caller owns the returned client and must Close it.
func Open(ctx context.Context, cfg config.BrokerConfig, logger *slog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse broker URL: %w", err)
	}

	c := NewClient(redis.NewClient(opts), cfg.ConsumerName, logger)

	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping broker: %w", err)
	}
	if err := c.DeclareQueues(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewClient wraps an existing Redis client. An empty consumer name is
// replaced by a unique host-derived one.
func NewClient(rdb redis.UniversalClient, consumer string, logger *slog.Logger) *Client {
	if consumer == "" {
		consumer = defaultConsumerName()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rdb:      rdb,
		consumer: consumer,
		logger:   logger.With("component", "broker", "consumer", consumer),
	}
}

// Channel returns the underlying Redis handle.
func (c *Client) Channel() redis.UniversalClient {
	return c.rdb
}

// ConsumerName identifies this process inside every consumer group.
func (c *Client) ConsumerName() string {
	return c.consumer
}

// Ping checks broker connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// DeclareQueues creates every stream and its consumer group if missing.
// Safe to call concurrently from several processes.
func (c *Client) DeclareQueues(ctx context.Context) error {
	for _, q := range Queues {
		err := c.rdb.XGroupCreateMkStream(ctx, string(q), q.Group(), "0").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	return nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
