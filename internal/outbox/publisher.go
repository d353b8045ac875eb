// Package outbox relays committed domain events from the database to the
// broker. The write side is transactional with the state change; this
// publisher owns the read side.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"harvester/internal/broker"
	"harvester/internal/observability"
	"harvester/internal/store"
	"harvester/pkg/api"
)

// Stream names per event type. The routing table is a closed allow-list;
// an unknown event type in the outbox means a producer bug, and the row
// fails loudly instead of landing on a guessed stream.
const (
	StreamEvaluation = "harvest.evaluation"
	StreamCompleted  = "harvest.completed"
	StreamBalance    = "harvest.balance"
)

// Publisher drains PENDING outbox rows in batches on a fixed interval.
type Publisher struct {
	store   store.OutboxStore
	broker  broker.Publisher
	routes  map[string]string
	logger  *slog.Logger
	metrics *observability.Metrics

	interval time.Duration
	batch    int
	clock    func() time.Time
}

func NewPublisher(st store.OutboxStore, b broker.Publisher, log *slog.Logger, metrics *observability.Metrics, interval time.Duration, batch int) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}

	return &Publisher{
		store:   st,
		broker:  b,
		routes:  DefaultRoutes(),
		logger:  log,
		metrics: metrics,

		interval: interval,
		batch:    batch,
		clock:    time.Now,
	}
}

// DefaultRoutes maps event types to their destination streams.
func DefaultRoutes() map[string]string {
	return map[string]string{
		api.EventEvaluationRequest:   StreamEvaluation,
		api.EventEvaluationCompleted: StreamCompleted,
		api.EventBalanceChanged:      StreamBalance,
	}
}

// Run ticks until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("outbox publisher started", "interval", p.interval, "batch", p.batch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				p.logger.Error("outbox tick failed", "error", err)
			}
		}
	}
}

// Tick publishes one batch of PENDING rows, oldest first. Each row settles
// independently: a publish error marks that row FAILED and the batch moves
// on. FAILED rows never re-enter the batch; an operator requeues them
// after fixing the cause.
func (p *Publisher) Tick(ctx context.Context) error {
	pending, err := p.store.SelectPending(ctx, p.batch)
	if err != nil {
		return fmt.Errorf("failed to select pending rows: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	published, failed := 0, 0
	for i := range pending {
		msg := &pending[i]
		if err := p.publishOne(ctx, msg); err != nil {
			p.logger.Error("outbox row failed", "message_id", msg.MessageID,
				"event_type", msg.EventType, "error", err)
			if merr := p.store.MarkFailed(ctx, msg.ID); merr != nil {
				return fmt.Errorf("failed to mark row %d failed: %w", msg.ID, merr)
			}
			p.metrics.OutboxResult(ctx, "failed")
			failed++
			continue
		}

		if err := p.store.MarkPublished(ctx, msg.ID, p.clock().UTC()); err != nil {
			return fmt.Errorf("failed to mark row %d published: %w", msg.ID, err)
		}
		p.metrics.OutboxResult(ctx, "published")
		published++
	}

	p.logger.Info("outbox batch drained", "published", published, "failed", failed)
	return nil
}

func (p *Publisher) publishOne(ctx context.Context, msg *store.OutboxMessage) error {
	stream, ok := p.routes[msg.EventType]
	if !ok {
		return fmt.Errorf("no route for event type %q", msg.EventType)
	}
	return p.broker.Publish(ctx, stream, msg.MessageID, msg.EventType, msg.Payload)
}
