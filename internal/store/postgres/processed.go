package postgres

import (
	"context"
	"fmt"
	"time"

	"harvester/internal/store"
)

// SeenMessage reports whether the message id was already processed.
func (s *Store) SeenMessage(ctx context.Context, messageID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM processed_messages WHERE message_id = $1)`

	var seen bool
	if err := s.db.QueryRowContext(ctx, query, messageID).Scan(&seen); err != nil {
		return false, fmt.Errorf("failed to check processed message %s: %w", messageID, err)
	}
	return seen, nil
}

// RecordMessage inserts a ledger row inside the side-effect transaction.
// The unique key turns a concurrent double-apply into a constraint error
// that rolls the second transaction back.
func (s *Store) RecordMessage(ctx context.Context, tx store.DBTransaction, messageID, eventType string, at time.Time) error {
	executor := s.getExecutor(tx)

	query := `INSERT INTO processed_messages (message_id, event_type, processed_at) VALUES ($1, $2, $3)`

	if _, err := executor.ExecContext(ctx, query, messageID, eventType, at); err != nil {
		return fmt.Errorf("failed to record processed message %s: %w", messageID, err)
	}
	return nil
}

// InsertNotification writes a consumer-side notification row.
func (s *Store) InsertNotification(ctx context.Context, tx store.DBTransaction, n *store.Notification) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO notifications (subject_id, kind, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := executor.ExecContext(ctx, query, n.SubjectID, n.Kind, n.Title, n.Body, createdAt); err != nil {
		return fmt.Errorf("failed to insert notification for subject %d: %w", n.SubjectID, err)
	}
	return nil
}

// InsertAchievement writes one earned evaluation result.
func (s *Store) InsertAchievement(ctx context.Context, tx store.DBTransaction, a *store.Achievement) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO achievements (subject_id, name, points, earned_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := executor.ExecContext(ctx, query, a.SubjectID, a.Name, a.Points, a.EarnedAt); err != nil {
		return fmt.Errorf("failed to insert achievement %q for subject %d: %w", a.Name, a.SubjectID, err)
	}
	return nil
}

// HasAchievement reports whether the subject already earned the achievement.
func (s *Store) HasAchievement(ctx context.Context, subjectID int64, name string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM achievements WHERE subject_id = $1 AND name = $2)`

	var has bool
	if err := s.db.QueryRowContext(ctx, query, subjectID, name).Scan(&has); err != nil {
		return false, fmt.Errorf("failed to check achievement %q for subject %d: %w", name, subjectID, err)
	}
	return has, nil
}
