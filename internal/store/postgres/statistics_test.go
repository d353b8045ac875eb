package postgres

import (
	"context"
	"testing"
	"time"

	"harvester/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSaveStatistics_WithoutOutbox(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	stats := &store.Statistics{
		SubjectID: 42, Commits: 10, Issues: 3, PullRequests: 2, Repositories: 4,
		Score: 22.5, ComputedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO statistics`).
		WithArgs(stats.SubjectID, stats.Commits, stats.Issues,
			stats.PullRequests, stats.Repositories, stats.Score, stats.ComputedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store_.SaveStatistics(context.Background(), stats, nil); err != nil {
		t.Fatalf("SaveStatistics failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSaveStatistics_WithOutbox_SameTransaction(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	stats := &store.Statistics{
		SubjectID: 42, Commits: 10, Score: 10, ComputedAt: time.Now().UTC(),
	}
	msg := &store.OutboxMessage{
		MessageID: "m-1",
		EventType: "evaluation-request",
		Payload:   []byte(`{"userId":42,"score":10}`),
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO statistics`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO outbox_messages`).
		WithArgs(msg.MessageID, msg.EventType, msg.Payload, store.OutboxPending, msg.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := store_.SaveStatistics(context.Background(), stats, msg); err != nil {
		t.Fatalf("SaveStatistics failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSaveStatistics_OutboxFailureRollsBack(t *testing.T) {
	store_, mock := newMockStore(t)
	defer store_.db.Close()

	stats := &store.Statistics{SubjectID: 42, ComputedAt: time.Now().UTC()}
	msg := &store.OutboxMessage{
		MessageID: "m-1", EventType: "evaluation-request",
		Payload: []byte(`{}`), CreatedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO statistics`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO outbox_messages`).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	if err := store_.SaveStatistics(context.Background(), stats, msg); err == nil {
		t.Error("expected error when the outbox insert fails, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
