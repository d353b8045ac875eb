package postgres

import (
	"context"
	"fmt"
	"time"

	"harvester/internal/store"
)

// EnqueueOutbox inserts a PENDING outbox row, inside tx when given.
func (s *Store) EnqueueOutbox(ctx context.Context, tx store.DBTransaction, msg *store.OutboxMessage) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO outbox_messages (message_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := executor.ExecContext(ctx, query,
		msg.MessageID, msg.EventType, msg.Payload, store.OutboxPending, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox message %s: %w", msg.MessageID, err)
	}
	return nil
}

// SelectPending returns up to limit PENDING rows, oldest first. The bound
// keeps one publisher tick from monopolizing the table under backlog.
func (s *Store) SelectPending(ctx context.Context, limit int) ([]store.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, message_id, event_type, payload, status, created_at, published_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	return s.queryOutbox(ctx, query, store.OutboxPending, limit)
}

// ListOutbox returns rows in a given status for operator inspection.
func (s *Store) ListOutbox(ctx context.Context, status store.OutboxStatus, limit int) ([]store.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, message_id, event_type, payload, status, created_at, published_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return s.queryOutbox(ctx, query, status, limit)
}

func (s *Store) queryOutbox(ctx context.Context, query string, status store.OutboxStatus, limit int) ([]store.OutboxMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var messages []store.OutboxMessage
	for rows.Next() {
		var msg store.OutboxMessage
		if err := rows.Scan(
			&msg.ID, &msg.MessageID, &msg.EventType, &msg.Payload,
			&msg.Status, &msg.CreatedAt, &msg.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkPublished transitions a row PENDING -> PUBLISHED.
func (s *Store) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE outbox_messages SET status = $2, published_at = $3 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, store.OutboxPublished, at); err != nil {
		return fmt.Errorf("failed to mark outbox %d published: %w", id, err)
	}
	return nil
}

// MarkFailed transitions a row PENDING -> FAILED. Failed rows are left for
// an operator backfill, never retried automatically.
func (s *Store) MarkFailed(ctx context.Context, id int64) error {
	query := `UPDATE outbox_messages SET status = $2 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, store.OutboxFailed); err != nil {
		return fmt.Errorf("failed to mark outbox %d failed: %w", id, err)
	}
	return nil
}

// RequeueOutbox transitions a row FAILED -> PENDING. This is the operator
// path back into the publisher after the failure cause is fixed.
func (s *Store) RequeueOutbox(ctx context.Context, id int64) error {
	query := `UPDATE outbox_messages SET status = $2, published_at = NULL WHERE id = $1 AND status = $3`

	res, err := s.db.ExecContext(ctx, query, id, store.OutboxPending, store.OutboxFailed)
	if err != nil {
		return fmt.Errorf("failed to requeue outbox %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("outbox %d is not in FAILED status", id)
	}
	return nil
}
