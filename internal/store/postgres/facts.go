package postgres

import (
	"context"
	"fmt"

	"harvester/internal/store"
)

// CommitExists reports whether a commit fact was already harvested.
func (s *Store) CommitExists(ctx context.Context, subjectID int64, repository, sha string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM commits WHERE subject_id = $1 AND repository = $2 AND sha = $3)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, subjectID, repository, sha).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check commit existence: %w", err)
	}
	return exists, nil
}

// InsertCommit appends a commit fact. The primary key makes a duplicate
// insert an error, not silent corruption.
func (s *Store) InsertCommit(ctx context.Context, c *store.Commit) error {
	query := `
		INSERT INTO commits (subject_id, repository, sha, message, additions, deletions, committed_at, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.SubjectID, c.Repository, c.SHA, c.Message,
		c.Additions, c.Deletions, c.CommittedAt, c.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert commit %s: %w", c.SHA, err)
	}
	return nil
}

func (s *Store) IssueExists(ctx context.Context, subjectID int64, repository string, number int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM issues WHERE subject_id = $1 AND repository = $2 AND number = $3)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, subjectID, repository, number).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check issue existence: %w", err)
	}
	return exists, nil
}

func (s *Store) InsertIssue(ctx context.Context, i *store.Issue) error {
	query := `
		INSERT INTO issues (subject_id, repository, number, title, state, opened_at, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		i.SubjectID, i.Repository, i.Number, i.Title, i.State, i.OpenedAt, i.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert issue %s#%d: %w", i.Repository, i.Number, err)
	}
	return nil
}

func (s *Store) PullRequestExists(ctx context.Context, subjectID int64, repository string, number int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM pull_requests WHERE subject_id = $1 AND repository = $2 AND number = $3)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, subjectID, repository, number).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pull request existence: %w", err)
	}
	return exists, nil
}

func (s *Store) InsertPullRequest(ctx context.Context, pr *store.PullRequest) error {
	query := `
		INSERT INTO pull_requests (subject_id, repository, number, title, state, merged, opened_at, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		pr.SubjectID, pr.Repository, pr.Number, pr.Title, pr.State, pr.Merged, pr.OpenedAt, pr.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pull request %s#%d: %w", pr.Repository, pr.Number, err)
	}
	return nil
}

// UpsertContributedRepo refreshes repo-level data in place. Star counts
// drift between runs, so this is the one fact type that is not append-only.
func (s *Store) UpsertContributedRepo(ctx context.Context, r *store.ContributedRepo) error {
	query := `
		INSERT INTO contributed_repos (subject_id, repository, stars, is_fork, collected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject_id, repository)
		DO UPDATE SET stars = $3, is_fork = $4, collected_at = $5
	`

	_, err := s.db.ExecContext(ctx, query,
		r.SubjectID, r.Repository, r.Stars, r.IsFork, r.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contributed repo %s: %w", r.Repository, err)
	}
	return nil
}

// FactCounts returns per-type fact counts for one subject.
func (s *Store) FactCounts(ctx context.Context, subjectID int64) (commits, issues, pullRequests, repos int, err error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM commits WHERE subject_id = $1),
			(SELECT COUNT(*) FROM issues WHERE subject_id = $1),
			(SELECT COUNT(*) FROM pull_requests WHERE subject_id = $1),
			(SELECT COUNT(*) FROM contributed_repos WHERE subject_id = $1)
	`

	err = s.db.QueryRowContext(ctx, query, subjectID).Scan(&commits, &issues, &pullRequests, &repos)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to count facts for subject %d: %w", subjectID, err)
	}
	return commits, issues, pullRequests, repos, nil
}
