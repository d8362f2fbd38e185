package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kiranshivaraju/reviewpulse/internal/config"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// ErrPermanent marks a handler failure that redelivery cannot fix.
var ErrPermanent = errors.New("permanent message failure")

// Permanent wraps err so the consumer dead-letters the message immediately.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

const (
	fetchBackoff  = time.Second
	settleTimeout = 5 * time.Second
)

// Delivery is one message handed to a Handler.
type Delivery struct {
	ID          string
	Queue       Queue
	Body        []byte
	Attempt     int
	MaxAttempts int
}

// Final reports whether this is the last attempt before the message is dead-lettered.
func (d Delivery) Final() bool {
	return d.MaxAttempts > 0 && d.Attempt >= d.MaxAttempts
}

// Handler processes one delivery. Returning nil acknowledges the message.
// Returning an error wrapping ErrPermanent dead-letters it. Any other error
// leaves it pending for redelivery, or dead-letters it on the final attempt.
type Handler func(ctx context.Context, d Delivery) error

// ConsumeOptions bounds how much work a consumer holds at once.
// Concurrency is capped by Prefetch, and a consumer never reads more
// messages than it has idle handlers, so every message it holds is running.
type ConsumeOptions struct {
	Prefetch          int
	Concurrency       int
	Block             time.Duration
	VisibilityTimeout time.Duration
	MaxAttempts       int
}

// OptionsFromConfig builds ConsumeOptions from broker settings.
func OptionsFromConfig(cfg config.BrokerConfig, maxAttempts int) ConsumeOptions {
	return ConsumeOptions{
		Prefetch:          cfg.Prefetch,
		Concurrency:       cfg.Concurrency,
		Block:             cfg.BlockTimeout,
		VisibilityTimeout: cfg.VisibilityTimeout,
		MaxAttempts:       maxAttempts,
	}
}

func (o ConsumeOptions) withDefaults() ConsumeOptions {
	if o.Prefetch <= 0 {
		o.Prefetch = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Concurrency > o.Prefetch {
		o.Concurrency = o.Prefetch
	}
	if o.Block <= 0 {
		o.Block = 5 * time.Second
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = time.Minute
	}
	return o
}

// Consume runs the delivery loop for q until ctx is cancelled, then waits
// for running handlers to settle. Each read asks for at most as many
// messages as there are idle handler slots.
func (c *Client) Consume(ctx context.Context, q Queue, opts ConsumeOptions, h Handler) error {
	opts = opts.withDefaults()
	logger := c.logger.With("queue", string(q))
	logger.Info("waiting for messages",
		"prefetch", opts.Prefetch,
		"concurrency", opts.Concurrency,
		"max_attempts", opts.MaxAttempts,
	)
	c.reportDeadLetters(ctx, logger, q)

	slots := make(chan struct{}, opts.Concurrency)
	var g errgroup.Group
	defer func() {
		_ = g.Wait()
		logger.Info("consumer stopped")
	}()

	for {
		free := acquire(ctx, slots)
		if free == 0 {
			return nil
		}

		batch, err := c.Fetch(ctx, q, opts.limit(free))
		for range free - len(batch) {
			<-slots
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("fetch messages", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(fetchBackoff):
			}
			continue
		}

		for _, d := range batch {
			g.Go(func() error {
				defer func() { <-slots }()
				c.process(ctx, d, h)
				return nil
			})
		}
	}
}

// acquire blocks until at least one handler slot is idle, then takes every
// idle slot. It returns the number taken, or 0 once ctx is done.
func acquire(ctx context.Context, slots chan struct{}) int {
	select {
	case slots <- struct{}{}:
	case <-ctx.Done():
		return 0
	}
	n := 1
	for n < cap(slots) {
		select {
		case slots <- struct{}{}:
			n++
		default:
			return n
		}
	}
	return n
}

// limit returns o with Prefetch lowered to n.
func (o ConsumeOptions) limit(n int) ConsumeOptions {
	if n < o.Prefetch {
		o.Prefetch = n
	}
	return o
}

// Fetch returns the next batch for this consumer. Entries abandoned by any
// consumer for longer than the visibility timeout come first; otherwise it
// blocks up to opts.Block for new messages.
func (c *Client) Fetch(ctx context.Context, q Queue, opts ConsumeOptions) ([]Delivery, error) {
	opts = opts.withDefaults()

	claimed, err := c.reclaim(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	if len(claimed) > 0 {
		return claimed, nil
	}
	return c.readNew(ctx, q, opts)
}

func (c *Client) reclaim(ctx context.Context, q Queue, opts ConsumeOptions) ([]Delivery, error) {
	msgs, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   string(q),
		Group:    q.Group(),
		Consumer: c.consumer,
		MinIdle:  opts.VisibilityTimeout,
		Start:    "0-0",
		Count:    int64(opts.Prefetch),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reclaim %s: %w", q, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	counts, err := c.deliveryCounts(ctx, q, msgs)
	if err != nil {
		return nil, err
	}

	out := make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		attempt := int(counts[m.ID])
		if attempt < 1 {
			attempt = 1
		}
		out = append(out, newDelivery(q, m, attempt, opts.MaxAttempts))
	}
	return out, nil
}

// deliveryCounts looks up how many times each claimed entry has been delivered.
func (c *Client) deliveryCounts(ctx context.Context, q Queue, msgs []redis.XMessage) (map[string]int64, error) {
	cmds := make([]*redis.XPendingExtCmd, len(msgs))
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range msgs {
			cmds[i] = p.XPendingExt(ctx, &redis.XPendingExtArgs{
				Stream: string(q),
				Group:  q.Group(),
				Start:  m.ID,
				End:    m.ID,
				Count:  1,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pending counts %s: %w", q, err)
	}

	counts := make(map[string]int64, len(msgs))
	for _, cmd := range cmds {
		entries, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("pending counts %s: %w", q, err)
		}
		for _, e := range entries {
			counts[e.ID] = e.RetryCount
		}
	}
	return counts, nil
}

func (c *Client) readNew(ctx context.Context, q Queue, opts ConsumeOptions) ([]Delivery, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.Group(),
		Consumer: c.consumer,
		Streams:  []string{string(q), ">"},
		Count:    int64(opts.Prefetch),
		Block:    opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", q, err)
	}

	var out []Delivery
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, newDelivery(q, m, 1, opts.MaxAttempts))
		}
	}
	return out, nil
}

func newDelivery(q Queue, m redis.XMessage, attempt, maxAttempts int) Delivery {
	body, _ := m.Values[fieldBody].(string)
	return Delivery{
		ID:          m.ID,
		Queue:       q,
		Body:        []byte(body),
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}
}

// process runs the handler and settles the delivery according to its result.
func (c *Client) process(ctx context.Context, d Delivery, h Handler) {
	logger := c.logger.With("queue", string(d.Queue), "message_id", d.ID, "attempt", d.Attempt)

	err := invoke(ctx, d, h)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	switch {
	case err == nil:
		if ackErr := c.Ack(settleCtx, d); ackErr != nil {
			logger.Error("ack message", "error", ackErr)
		}
	case ctx.Err() != nil:
		logger.Info("consumer stopping, message left for redelivery", "error", err)
	case errors.Is(err, ErrPermanent) || d.Final():
		logger.Warn("dead-lettering message", "error", err, "max_attempts", d.MaxAttempts)
		if dlErr := c.DeadLetter(settleCtx, d, err.Error()); dlErr != nil {
			logger.Error("dead-letter message", "error", dlErr)
		}
	default:
		logger.Warn("message left for redelivery", "error", err, "max_attempts", d.MaxAttempts)
	}
}

func invoke(ctx context.Context, d Delivery, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, d)
}

// Ack removes d from the consumer group's pending list.
func (c *Client) Ack(ctx context.Context, d Delivery) error {
	if err := c.rdb.XAck(ctx, string(d.Queue), d.Queue.Group(), d.ID).Err(); err != nil {
		return fmt.Errorf("ack %s %s: %w", d.Queue, d.ID, err)
	}
	return nil
}

// DeadLetter copies d to the queue's dead-letter stream and acknowledges it
// in one transaction.
func (c *Client) DeadLetter(ctx context.Context, d Delivery, reason string) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: d.Queue.DeadLetter(),
			Values: map[string]any{
				fieldBody:     d.Body,
				fieldReason:   reason,
				fieldSourceID: d.ID,
				fieldAttempts: d.Attempt,
			},
		})
		p.XAck(ctx, string(d.Queue), d.Queue.Group(), d.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter %s %s: %w", d.Queue, d.ID, err)
	}
	return nil
}

// DeadLetterEntry is a message that exhausted its attempts or failed permanently.
type DeadLetterEntry struct {
	ID       string
	SourceID string
	Reason   string
	Attempts int
	Body     []byte
}

// DeadLetters lists up to limit entries from q's dead-letter stream, oldest first.
func (c *Client) DeadLetters(ctx context.Context, q Queue, limit int64) ([]DeadLetterEntry, error) {
	msgs, err := c.rdb.XRangeN(ctx, q.DeadLetter(), "-", "+", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters %s: %w", q, err)
	}

	out := make([]DeadLetterEntry, 0, len(msgs))
	for _, m := range msgs {
		body, _ := m.Values[fieldBody].(string)
		reason, _ := m.Values[fieldReason].(string)
		source, _ := m.Values[fieldSourceID].(string)
		attemptsStr, _ := m.Values[fieldAttempts].(string)
		attempts, _ := strconv.Atoi(attemptsStr)
		out = append(out, DeadLetterEntry{
			ID:       m.ID,
			SourceID: source,
			Reason:   reason,
			Attempts: attempts,
			Body:     []byte(body),
		})
	}
	return out, nil
}

// DeadLetterCount returns how many entries q's dead-letter stream holds.
func (c *Client) DeadLetterCount(ctx context.Context, q Queue) (int64, error) {
	n, err := c.rdb.XLen(ctx, q.DeadLetter()).Result()
	if err != nil {
		return 0, fmt.Errorf("count dead letters %s: %w", q, err)
	}
	return n, nil
}

// deadLetterSample is how many dead-lettered entries a consumer logs on start.
const deadLetterSample = 5

// reportDeadLetters logs the dead-letter backlog of q and its oldest entries.
func (c *Client) reportDeadLetters(ctx context.Context, logger *slog.Logger, q Queue) {
	n, err := c.DeadLetterCount(ctx, q)
	if err != nil {
		logger.Warn("inspect dead letters", "error", err)
		return
	}
	if n == 0 {
		return
	}

	logger.Warn("dead-lettered messages waiting", "count", n, "stream", q.DeadLetter())
	entries, err := c.DeadLetters(ctx, q, deadLetterSample)
	if err != nil {
		logger.Warn("inspect dead letters", "error", err)
		return
	}
	for _, e := range entries {
		logger.Warn("dead-lettered message",
			"id", e.ID,
			"source_id", e.SourceID,
			"attempts", e.Attempts,
			"reason", e.Reason,
		)
	}
}
