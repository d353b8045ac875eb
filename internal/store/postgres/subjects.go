package postgres

import (
	"context"
	"fmt"

	"harvester/internal/store"
)

// GetSubject returns a subject by id. sql.ErrNoRows passes through so
// callers can distinguish missing from broken.
func (s *Store) GetSubject(ctx context.Context, id int64) (*store.Subject, error) {
	query := `SELECT id, login, token, node_id, active, created_at FROM subjects WHERE id = $1`

	var subject store.Subject
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&subject.ID, &subject.Login, &subject.Token,
		&subject.NodeID, &subject.Active, &subject.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &subject, nil
}

// ActiveSubjectIDs returns all subjects eligible for collection.
func (s *Store) ActiveSubjectIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT id FROM subjects WHERE active ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active subjects: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpdateSubjectNodeID stores the GraphQL node id resolved on first collection.
func (s *Store) UpdateSubjectNodeID(ctx context.Context, id int64, nodeID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subjects SET node_id = $2 WHERE id = $1`, id, nodeID)
	if err != nil {
		return fmt.Errorf("failed to update node id for subject %d: %w", id, err)
	}
	return nil
}
