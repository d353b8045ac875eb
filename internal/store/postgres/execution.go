package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"harvester/internal/store"
)

// InsertExecution records the start of a pipeline run.
func (s *Store) InsertExecution(ctx context.Context, exec *store.JobExecution) error {
	query := `
		INSERT INTO job_executions (id, subject_id, run_id, started_at, outcome)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		exec.ID, exec.SubjectID, exec.RunID, exec.StartedAt, exec.Outcome,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution %s: %w", exec.ID, err)
	}

	return nil
}

// FinishExecution sets the terminal outcome of a run.
func (s *Store) FinishExecution(ctx context.Context, id uuid.UUID, outcome store.ExecutionOutcome, endedAt time.Time) error {
	query := `
		UPDATE job_executions
		SET outcome = $2, ended_at = $3
		WHERE id = $1 AND outcome = $4
	`

	res, err := s.db.ExecContext(ctx, query, id, outcome, endedAt, store.OutcomeRunning)
	if err != nil {
		return fmt.Errorf("failed to finish execution %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("execution %s not running", id)
	}

	return nil
}

// LastCompletedAt returns the most recent ended_at of a COMPLETED run for
// the subject, or nil if none exists.
func (s *Store) LastCompletedAt(ctx context.Context, subjectID int64) (*time.Time, error) {
	query := `
		SELECT ended_at FROM job_executions
		WHERE subject_id = $1 AND outcome = $2 AND ended_at IS NOT NULL
		ORDER BY ended_at DESC
		LIMIT 1
	`

	var endedAt time.Time
	err := s.db.QueryRowContext(ctx, query, subjectID, store.OutcomeCompleted).Scan(&endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last completed run for subject %d: %w", subjectID, err)
	}

	return &endedAt, nil
}
