// Package broker wraps Redis streams as the harvester's message
// transport: the outbox publisher appends, consumer groups read, ack, and
// reclaim stalled deliveries.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry field names on the event streams.
const (
	FieldMessageID = "messageId"
	FieldEventType = "eventType"
	FieldPayload   = "payload"
)

// Publisher is the outbox publisher's view of the broker.
type Publisher interface {
	Publish(ctx context.Context, stream, messageID, eventType string, payload []byte) error
}

// Delivery is one entry read from a stream on behalf of a consumer group.
type Delivery struct {
	StreamID  string // redis entry id, used for acking
	MessageID string
	EventType string
	Payload   []byte
	Values    map[string]any // raw fields, for streams with ad-hoc schemas
}

// Streams is the go-redis backed broker.
type Streams struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewStreams(rdb *redis.Client, log *slog.Logger) *Streams {
	return &Streams{rdb: rdb, logger: log}
}

// Publish appends one event entry to the stream.
func (s *Streams) Publish(ctx context.Context, stream, messageID, eventType string, payload []byte) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			FieldMessageID: messageID,
			FieldEventType: eventType,
			FieldPayload:   payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", messageID, stream, err)
	}
	return nil
}

// EnsureGroup creates the consumer group at the stream tail if it does not
// exist yet. An already-existing group is not an error.
func (s *Streams) EnsureGroup(ctx context.Context, stream, group string) error {
	err := s.rdb.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup blocks up to the given duration for new entries on the stream,
// delivered to this consumer within the group. A timeout returns an empty
// slice, not an error.
func (s *Streams) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Delivery, error) {
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s as %s/%s: %w", stream, group, consumer, err)
	}

	var deliveries []Delivery
	for _, str := range res {
		for _, msg := range str.Messages {
			deliveries = append(deliveries, toDelivery(msg))
		}
	}
	return deliveries, nil
}

// Claim reclaims entries that another consumer read but never acked, after
// they sat idle for minIdle. Used at startup to finish work a crashed
// instance left pending.
func (s *Streams) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Delivery, error) {
	msgs, _, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending on %s: %w", stream, err)
	}

	deliveries := make([]Delivery, 0, len(msgs))
	for _, msg := range msgs {
		deliveries = append(deliveries, toDelivery(msg))
	}
	return deliveries, nil
}

// Ack marks the entry as processed for the group.
func (s *Streams) Ack(ctx context.Context, stream, group, streamID string) error {
	if err := s.rdb.XAck(ctx, stream, group, streamID).Err(); err != nil {
		return fmt.Errorf("failed to ack %s on %s: %w", streamID, stream, err)
	}
	return nil
}

// DeadLetter parks a poison entry on the stream's dead-letter sibling with
// the failure reason attached.
func (s *Streams) DeadLetter(ctx context.Context, stream string, d Delivery, reason string) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream + ".dlq",
		Values: map[string]any{
			FieldMessageID: d.MessageID,
			FieldEventType: d.EventType,
			FieldPayload:   d.Payload,
			"reason":       reason,
			"sourceStream": stream,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", d.MessageID, err)
	}

	s.logger.Warn("message dead-lettered", "stream", stream, "message_id", d.MessageID, "reason", reason)
	return nil
}

func toDelivery(msg redis.XMessage) Delivery {
	d := Delivery{StreamID: msg.ID, Values: msg.Values}
	if v, ok := msg.Values[FieldMessageID].(string); ok {
		d.MessageID = v
	}
	if v, ok := msg.Values[FieldEventType].(string); ok {
		d.EventType = v
	}
	if v, ok := msg.Values[FieldPayload].(string); ok {
		d.Payload = []byte(v)
	}
	return d
}
