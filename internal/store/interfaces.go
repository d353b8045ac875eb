package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows passing either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxRunner runs a function inside one local transaction. The function's
// error rolls the transaction back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx DBTransaction) error) error
}

// SubjectStore reads the registered subject population.
type SubjectStore interface {
	// GetSubject returns a subject by id, or sql.ErrNoRows.
	GetSubject(ctx context.Context, id int64) (*Subject, error)

	// ActiveSubjectIDs returns the ids of all subjects eligible for collection.
	ActiveSubjectIDs(ctx context.Context) ([]int64, error)
}

// ExecutionStore handles the append-only pipeline run history.
type ExecutionStore interface {
	// InsertExecution records the start of a run (outcome RUNNING).
	InsertExecution(ctx context.Context, exec *JobExecution) error

	// FinishExecution sets the terminal outcome and end time of a run.
	FinishExecution(ctx context.Context, id uuid.UUID, outcome ExecutionOutcome, endedAt time.Time) error

	// LastCompletedAt returns the most recent ended_at of a COMPLETED run
	// for the subject, or nil if the subject never completed a run.
	LastCompletedAt(ctx context.Context, subjectID int64) (*time.Time, error)
}

// FactStore persists harvested facts. Writers must check existence before
// insert so re-runs over identical upstream data stay idempotent.
type FactStore interface {
	CommitExists(ctx context.Context, subjectID int64, repository, sha string) (bool, error)
	InsertCommit(ctx context.Context, c *Commit) error

	IssueExists(ctx context.Context, subjectID int64, repository string, number int) (bool, error)
	InsertIssue(ctx context.Context, i *Issue) error

	PullRequestExists(ctx context.Context, subjectID int64, repository string, number int) (bool, error)
	InsertPullRequest(ctx context.Context, pr *PullRequest) error

	UpsertContributedRepo(ctx context.Context, r *ContributedRepo) error

	// FactCounts returns per-type fact counts for one subject.
	FactCounts(ctx context.Context, subjectID int64) (commits, issues, pullRequests, repos int, err error)
}

// MetadataStore tracks per-subject collection bookkeeping.
type MetadataStore interface {
	GetMetadata(ctx context.Context, subjectID int64) (*CollectionMetadata, error)
	TouchCollection(ctx context.Context, subjectID int64, cursors map[string]string, at time.Time) error
	UpdateRateLimitReset(ctx context.Context, subjectID int64, resetAt time.Time) error
}

// StatisticsStore persists computed aggregates. SaveStatistics writes the
// row and the evaluation-request outbox message in the same transaction,
// which is the write-ahead half of the outbox contract.
type StatisticsStore interface {
	GetStatistics(ctx context.Context, subjectID int64) (*Statistics, error)
	SaveStatistics(ctx context.Context, stats *Statistics, outbox *OutboxMessage) error
}

// PlatformStatisticsStore maintains the single platform-wide average row.
type PlatformStatisticsStore interface {
	// GetPlatformStatistics returns the average row, or nil when no
	// recount has happened yet.
	GetPlatformStatistics(ctx context.Context) (*PlatformStatistics, error)

	// RecomputePlatformStatistics recounts the statistics table into the
	// average row and returns the fresh values.
	RecomputePlatformStatistics(ctx context.Context, at time.Time) (*PlatformStatistics, error)
}

// OutboxStore is the publisher's view of the outbox table.
type OutboxStore interface {
	// EnqueueOutbox inserts a PENDING row, optionally inside tx.
	EnqueueOutbox(ctx context.Context, tx DBTransaction, msg *OutboxMessage) error

	// SelectPending returns up to limit PENDING rows, oldest first.
	SelectPending(ctx context.Context, limit int) ([]OutboxMessage, error)

	// ListOutbox returns rows in a given status for operator inspection.
	ListOutbox(ctx context.Context, status OutboxStatus, limit int) ([]OutboxMessage, error)

	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64) error

	// RequeueOutbox moves a FAILED row back to PENDING. Operator-only;
	// the publisher never calls it.
	RequeueOutbox(ctx context.Context, id int64) error
}

// ProcessedMessageStore is the consumer's idempotency ledger.
type ProcessedMessageStore interface {
	// SeenMessage reports whether the message id was already processed.
	SeenMessage(ctx context.Context, messageID string) (bool, error)

	// RecordMessage inserts a ledger row. Must run in the same transaction
	// as the side effect it guards.
	RecordMessage(ctx context.Context, tx DBTransaction, messageID, eventType string, at time.Time) error
}

// SideEffectStore holds the consumer-side writes guarded by the ledger.
type SideEffectStore interface {
	InsertNotification(ctx context.Context, tx DBTransaction, n *Notification) error
	InsertAchievement(ctx context.Context, tx DBTransaction, a *Achievement) error
	HasAchievement(ctx context.Context, subjectID int64, name string) (bool, error)
}
