package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publish appends v, encoded as JSON, to queue q and returns the message ID.
// Entries are persisted with the stream; they survive broker restarts as
// far as the server's persistence settings allow.
func (c *Client) Publish(ctx context.Context, q Queue, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode message for %s: %w", q, err)
	}

	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: string(q),
		Values: map[string]any{
			fieldBody:        body,
			fieldPublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", q, err)
	}
	return id, nil
}
