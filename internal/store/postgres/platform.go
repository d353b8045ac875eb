package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"harvester/internal/store"
)

// platformRowID keys the single platform-wide row.
const platformRowID = "GLOBAL"

// GetPlatformStatistics returns the platform-wide average row, or nil when
// it was never computed.
func (s *Store) GetPlatformStatistics(ctx context.Context) (*store.PlatformStatistics, error) {
	query := `
		SELECT avg_commits, avg_issues, avg_pull_requests, avg_repositories, avg_score, subjects, computed_at
		FROM platform_statistics
		WHERE id = $1
	`

	var ps store.PlatformStatistics
	err := s.db.QueryRowContext(ctx, query, platformRowID).Scan(
		&ps.AvgCommits, &ps.AvgIssues, &ps.AvgPullRequests,
		&ps.AvgRepositories, &ps.AvgScore, &ps.Subjects, &ps.ComputedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query platform statistics: %w", err)
	}

	return &ps, nil
}

// RecomputePlatformStatistics recounts every subject's statistics row into
// the platform averages. The recount and the upsert happen in one
// statement, so concurrent callers cannot interleave a stale write.
func (s *Store) RecomputePlatformStatistics(ctx context.Context, at time.Time) (*store.PlatformStatistics, error) {
	query := `
		INSERT INTO platform_statistics
			(id, avg_commits, avg_issues, avg_pull_requests, avg_repositories, avg_score, subjects, computed_at)
		SELECT $1,
			COALESCE(AVG(commits), 0), COALESCE(AVG(issues), 0),
			COALESCE(AVG(pull_requests), 0), COALESCE(AVG(repositories), 0),
			COALESCE(AVG(score), 0), COUNT(*), $2
		FROM statistics
		ON CONFLICT (id) DO UPDATE SET
			avg_commits = EXCLUDED.avg_commits,
			avg_issues = EXCLUDED.avg_issues,
			avg_pull_requests = EXCLUDED.avg_pull_requests,
			avg_repositories = EXCLUDED.avg_repositories,
			avg_score = EXCLUDED.avg_score,
			subjects = EXCLUDED.subjects,
			computed_at = EXCLUDED.computed_at
		RETURNING avg_commits, avg_issues, avg_pull_requests, avg_repositories, avg_score, subjects, computed_at
	`

	var ps store.PlatformStatistics
	err := s.db.QueryRowContext(ctx, query, platformRowID, at).Scan(
		&ps.AvgCommits, &ps.AvgIssues, &ps.AvgPullRequests,
		&ps.AvgRepositories, &ps.AvgScore, &ps.Subjects, &ps.ComputedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute platform statistics: %w", err)
	}

	return &ps, nil
}
