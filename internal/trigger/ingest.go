// Package trigger ingests on-demand collection requests from the trigger
// stream and turns them into HIGH priority launcher submissions.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"harvester/internal/broker"
	"harvester/internal/launcher"
	"harvester/internal/store"
	"harvester/pkg/api"
)

// Stream is the ingester's view of the broker.
type Stream interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]broker.Delivery, error)
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]broker.Delivery, error)
	Ack(ctx context.Context, stream, group, streamID string) error
}

// Ingester consumes {userId} trigger entries within a consumer group.
type Ingester struct {
	stream   Stream
	launcher launcher.Submitter
	name     string // stream name
	group    string
	consumer string
	logger   *slog.Logger

	readCount int64
	readBlock time.Duration
	claimIdle time.Duration
}

func NewIngester(s Stream, l launcher.Submitter, streamName, group, consumer string, log *slog.Logger) *Ingester {
	return &Ingester{
		stream:   s,
		launcher: l,
		name:     streamName,
		group:    group,
		consumer: consumer,
		logger:   log,

		readCount: 32,
		readBlock: 5 * time.Second,
		claimIdle: time.Minute,
	}
}

// Run consumes the trigger stream until ctx is cancelled. Entries another
// instance read but never acked are reclaimed first, so a crash between
// read and submit costs one redundant collection at worst.
func (i *Ingester) Run(ctx context.Context) error {
	if err := i.stream.EnsureGroup(ctx, i.name, i.group); err != nil {
		return err
	}

	claimed, err := i.stream.Claim(ctx, i.name, i.group, i.consumer, i.claimIdle, i.readCount)
	if err != nil {
		return fmt.Errorf("failed to recover pending triggers: %w", err)
	}
	for _, d := range claimed {
		i.handle(ctx, d)
	}

	i.logger.Info("trigger ingester started", "stream", i.name, "group", i.group)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := i.stream.ReadGroup(ctx, i.name, i.group, i.consumer, i.readCount, i.readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.logger.Error("trigger read failed, backing off", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, d := range deliveries {
			i.handle(ctx, d)
		}
	}
}

// handle submits one trigger. Malformed entries are logged and acked:
// there is no dead-letter path for triggers because a bad trigger carries
// nothing worth replaying.
func (i *Ingester) handle(ctx context.Context, d broker.Delivery) {
	defer func() {
		if err := i.stream.Ack(ctx, i.name, i.group, d.StreamID); err != nil {
			i.logger.Error("trigger ack failed", "stream_id", d.StreamID, "error", err)
		}
	}()

	subjectID, err := parseTrigger(d)
	if err != nil {
		i.logger.Warn("skipping malformed trigger", "stream_id", d.StreamID, "error", err)
		return
	}

	if i.launcher.Submit(subjectID, store.PriorityHigh) {
		i.logger.Info("on-demand collection queued", "subject", subjectID)
	}
}

func parseTrigger(d broker.Delivery) (int64, error) {
	raw, ok := d.Values[api.TriggerFieldUserID]
	if !ok {
		return 0, fmt.Errorf("trigger entry missing %s", api.TriggerFieldUserID)
	}

	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("trigger %s is not a string: %T", api.TriggerFieldUserID, raw)
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("trigger %s %q is not a positive integer", api.TriggerFieldUserID, s)
	}
	return id, nil
}
