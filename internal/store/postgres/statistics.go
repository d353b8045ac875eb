package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"harvester/internal/store"
)

// GetStatistics returns the computed aggregate for a subject, or nil when
// no collection has completed yet.
func (s *Store) GetStatistics(ctx context.Context, subjectID int64) (*store.Statistics, error) {
	query := `
		SELECT subject_id, commits, issues, pull_requests, repositories, score, computed_at
		FROM statistics
		WHERE subject_id = $1
	`

	var stats store.Statistics
	err := s.db.QueryRowContext(ctx, query, subjectID).Scan(
		&stats.SubjectID, &stats.Commits, &stats.Issues,
		&stats.PullRequests, &stats.Repositories, &stats.Score, &stats.ComputedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics for subject %d: %w", subjectID, err)
	}

	return &stats, nil
}

// SaveStatistics upserts the aggregate row and, when outbox is non-nil,
// writes the domain event in the same transaction. The event row is the
// write-ahead half of the outbox contract: either both commit or neither.
func (s *Store) SaveStatistics(ctx context.Context, stats *store.Statistics, outbox *store.OutboxMessage) error {
	return s.WithTx(ctx, func(tx store.DBTransaction) error {
		query := `
			INSERT INTO statistics (subject_id, commits, issues, pull_requests, repositories, score, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (subject_id) DO UPDATE SET
				commits = $2, issues = $3, pull_requests = $4,
				repositories = $5, score = $6, computed_at = $7
		`

		_, err := tx.ExecContext(ctx, query,
			stats.SubjectID, stats.Commits, stats.Issues,
			stats.PullRequests, stats.Repositories, stats.Score, stats.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save statistics for subject %d: %w", stats.SubjectID, err)
		}

		if outbox == nil {
			return nil
		}
		return s.EnqueueOutbox(ctx, tx, outbox)
	})
}
