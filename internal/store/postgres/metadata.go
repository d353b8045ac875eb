package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"harvester/internal/store"
)

// GetMetadata returns the collection bookkeeping row for a subject, or nil
// when the subject was never collected.
func (s *Store) GetMetadata(ctx context.Context, subjectID int64) (*store.CollectionMetadata, error) {
	query := `
		SELECT subject_id, last_full_at, last_incremental_at, cursors, rate_limit_reset_at, updated_at
		FROM collection_metadata
		WHERE subject_id = $1
	`

	var md store.CollectionMetadata
	var cursors []byte
	err := s.db.QueryRowContext(ctx, query, subjectID).Scan(
		&md.SubjectID, &md.LastFullAt, &md.LastIncrementalAt,
		&cursors, &md.RateLimitResetAt, &md.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata for subject %d: %w", subjectID, err)
	}

	if len(cursors) > 0 {
		if err := json.Unmarshal(cursors, &md.Cursors); err != nil {
			return nil, fmt.Errorf("failed to decode cursors for subject %d: %w", subjectID, err)
		}
	}

	return &md, nil
}

// TouchCollection records the end of a successful run. GREATEST keeps the
// timestamps monotonic even if a stale writer races a fresh one.
func (s *Store) TouchCollection(ctx context.Context, subjectID int64, cursors map[string]string, at time.Time) error {
	encoded, err := json.Marshal(cursors)
	if err != nil {
		return fmt.Errorf("failed to encode cursors: %w", err)
	}
	if cursors == nil {
		encoded = []byte("{}")
	}

	query := `
		INSERT INTO collection_metadata (subject_id, last_full_at, last_incremental_at, cursors, updated_at)
		VALUES ($1, $2, $2, $3, $2)
		ON CONFLICT (subject_id) DO UPDATE SET
			last_incremental_at = GREATEST(collection_metadata.last_incremental_at, $2),
			cursors = $3,
			updated_at = $2
	`

	if _, err := s.db.ExecContext(ctx, query, subjectID, at, encoded); err != nil {
		return fmt.Errorf("failed to touch collection for subject %d: %w", subjectID, err)
	}
	return nil
}

// UpdateRateLimitReset stores the upstream API's reset time for the subject.
func (s *Store) UpdateRateLimitReset(ctx context.Context, subjectID int64, resetAt time.Time) error {
	query := `
		INSERT INTO collection_metadata (subject_id, rate_limit_reset_at, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (subject_id) DO UPDATE SET
			rate_limit_reset_at = $2,
			updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, subjectID, resetAt); err != nil {
		return fmt.Errorf("failed to update rate limit reset for subject %d: %w", subjectID, err)
	}
	return nil
}
