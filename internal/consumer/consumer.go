// Package consumer processes the harvester's domain events exactly once
// per message id. Delivery is at-least-once; the processed-message ledger
// turns it into effectively-once side effects.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"harvester/internal/broker"
	"harvester/internal/observability"
	"harvester/internal/store"
)

// Stream is the consumer's view of the broker.
type Stream interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]broker.Delivery, error)
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]broker.Delivery, error)
	Ack(ctx context.Context, stream, group, streamID string) error
	DeadLetter(ctx context.Context, stream string, d broker.Delivery, reason string) error
}

// Handler applies one event's side effect together with its ledger row.
type Handler func(ctx context.Context, d broker.Delivery) error

// Consumer reads one or more streams within a consumer group and
// dispatches by event type.
type Consumer struct {
	stream   Stream
	ledger   store.ProcessedMessageStore
	handlers map[string]Handler
	streams  []string
	group    string
	name     string
	logger   *slog.Logger
	metrics  *observability.Metrics

	readCount int64
	readBlock time.Duration
	claimIdle time.Duration
}

func New(s Stream, ledger store.ProcessedMessageStore, handlers map[string]Handler, streams []string, group, name string, log *slog.Logger, metrics *observability.Metrics) *Consumer {
	return &Consumer{
		stream:   s,
		ledger:   ledger,
		handlers: handlers,
		streams:  streams,
		group:    group,
		name:     name,
		logger:   log,
		metrics:  metrics,

		readCount: 16,
		readBlock: 5 * time.Second,
		claimIdle: time.Minute,
	}
}

// Run consumes every configured stream until ctx is cancelled. Deliveries
// another instance read but never acked are reclaimed first.
func (c *Consumer) Run(ctx context.Context) error {
	for _, stream := range c.streams {
		if err := c.stream.EnsureGroup(ctx, stream, c.group); err != nil {
			return err
		}
		if err := c.recoverPending(ctx, stream); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, stream := range c.streams {
		stream := stream
		g.Go(func() error {
			return c.consume(ctx, stream)
		})
	}
	return g.Wait()
}

func (c *Consumer) recoverPending(ctx context.Context, stream string) error {
	deliveries, err := c.stream.Claim(ctx, stream, c.group, c.name, c.claimIdle, c.readCount)
	if err != nil {
		return fmt.Errorf("failed to recover pending on %s: %w", stream, err)
	}
	if len(deliveries) == 0 {
		return nil
	}

	c.logger.Info("reprocessing stalled deliveries", "stream", stream, "count", len(deliveries))
	for _, d := range deliveries {
		c.handle(ctx, stream, d)
	}
	return nil
}

func (c *Consumer) consume(ctx context.Context, stream string) error {
	c.logger.Info("consumer started", "stream", stream, "group", c.group, "consumer", c.name)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.stream.ReadGroup(ctx, stream, c.group, c.name, c.readCount, c.readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("read failed, backing off", "stream", stream, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, d := range deliveries {
			c.handle(ctx, stream, d)
		}
	}
}

// handle settles one delivery. Every path acks: a duplicate is already
// done, a success is done now, and a failure parks on the dead-letter
// stream instead of redelivering forever.
func (c *Consumer) handle(ctx context.Context, stream string, d broker.Delivery) {
	log := c.logger.With("stream", stream, "message_id", d.MessageID, "event_type", d.EventType)

	if d.MessageID == "" {
		c.park(ctx, stream, d, "missing message id", log)
		return
	}

	seen, err := c.ledger.SeenMessage(ctx, d.MessageID)
	if err != nil {
		// The ledger is unreadable; leave the delivery pending so a later
		// claim retries it once the database is back.
		log.Error("ledger check failed, leaving delivery pending", "error", err)
		return
	}
	if seen {
		log.Info("duplicate delivery acknowledged")
		c.metrics.ConsumerDuplicate(ctx)
		c.ack(ctx, stream, d, log)
		return
	}

	handler, ok := c.handlers[d.EventType]
	if !ok {
		c.park(ctx, stream, d, fmt.Sprintf("no handler for event type %q", d.EventType), log)
		return
	}

	if err := handler(ctx, d); err != nil {
		c.park(ctx, stream, d, err.Error(), log)
		return
	}

	c.ack(ctx, stream, d, log)
}

func (c *Consumer) ack(ctx context.Context, stream string, d broker.Delivery, log *slog.Logger) {
	if err := c.stream.Ack(ctx, stream, c.group, d.StreamID); err != nil {
		// The ledger row already exists, so the eventual redelivery will
		// be acknowledged as a duplicate.
		log.Error("ack failed", "error", err)
	}
}

func (c *Consumer) park(ctx context.Context, stream string, d broker.Delivery, reason string, log *slog.Logger) {
	log.Error("delivery dead-lettered", "reason", reason)
	if err := c.stream.DeadLetter(ctx, stream, d, reason); err != nil {
		log.Error("dead-letter write failed, leaving delivery pending", "error", err)
		return
	}
	c.metrics.DeadLettered(ctx)
	c.ack(ctx, stream, d, log)
}
