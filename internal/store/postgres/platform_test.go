package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestGetPlatformStatistics_NeverComputed(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM platform_statistics`).
		WithArgs("GLOBAL").
		WillReturnError(sql.ErrNoRows)

	ps, err := store_.GetPlatformStatistics(context.Background())
	if err != nil {
		t.Fatalf("GetPlatformStatistics failed: %v", err)
	}
	if ps != nil {
		t.Errorf("got %+v, want nil before the first recount", ps)
	}
}

func TestRecomputePlatformStatistics(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	at := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"avg_commits", "avg_issues", "avg_pull_requests", "avg_repositories", "avg_score", "subjects", "computed_at",
	}).AddRow(12.5, 3.0, 4.5, 2.0, 27.25, 8, at)

	mock.ExpectQuery(`INSERT INTO platform_statistics`).
		WithArgs("GLOBAL", at).
		WillReturnRows(rows)

	ps, err := store_.RecomputePlatformStatistics(context.Background(), at)
	if err != nil {
		t.Fatalf("RecomputePlatformStatistics failed: %v", err)
	}
	if ps.AvgCommits != 12.5 || ps.Subjects != 8 {
		t.Errorf("got %+v, want the recounted averages back", ps)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
