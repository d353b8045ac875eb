// Package store contains the database layer for the harvester.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the scheduling class of a collection request.
// Lower order dequeues first.
type Priority int

const (
	PriorityHigh Priority = 1
	PriorityLow  Priority = 10
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority maps a wire value back to a Priority. Unknown values
// fall back to LOW so a bad producer can never jump the queue.
func ParsePriority(s string) Priority {
	if s == "HIGH" {
		return PriorityHigh
	}
	return PriorityLow
}

// Subject is a registered user whose GitHub activity gets harvested.
type Subject struct {
	ID        int64
	Login     string
	Token     string // GitHub API token, may be empty if the user revoked it
	NodeID    string // GraphQL node id, resolved on first collection
	Active    bool
	CreatedAt time.Time
}

// ExecutionOutcome represents the state of one pipeline run.
type ExecutionOutcome string

const (
	OutcomeRunning   ExecutionOutcome = "RUNNING"
	OutcomeCompleted ExecutionOutcome = "COMPLETED"
	OutcomeFailed    ExecutionOutcome = "FAILED"
)

// JobExecution is one attempt of the composed collection pipeline for a
// subject. Rows are append-only history; schedule recovery reads them to
// compute each subject's next due time.
type JobExecution struct {
	ID        uuid.UUID
	SubjectID int64
	RunID     string
	StartedAt time.Time
	EndedAt   *time.Time
	Outcome   ExecutionOutcome
}

// Commit is a harvested commit fact. Immutable once written; uniqueness is
// enforced on (subject_id, repository, sha).
type Commit struct {
	SubjectID   int64
	Repository  string
	SHA         string
	Message     string
	Additions   int
	Deletions   int
	CommittedAt time.Time
	CollectedAt time.Time
}

// Issue is a harvested issue fact keyed by (subject_id, repository, number).
type Issue struct {
	SubjectID   int64
	Repository  string
	Number      int
	Title       string
	State       string
	OpenedAt    time.Time
	CollectedAt time.Time
}

// PullRequest is a harvested pull request fact keyed by
// (subject_id, repository, number).
type PullRequest struct {
	SubjectID   int64
	Repository  string
	Number      int
	Title       string
	State       string
	Merged      bool
	OpenedAt    time.Time
	CollectedAt time.Time
}

// ContributedRepo records that a subject contributed to a repository.
type ContributedRepo struct {
	SubjectID   int64
	Repository  string
	Stars       int
	IsFork      bool
	CollectedAt time.Time
}

// CollectionMetadata is per-subject collection bookkeeping: last run
// timestamps plus the last pagination cursor per fact type. Timestamps are
// monotonically non-decreasing; cursors are opaque tokens from the API.
type CollectionMetadata struct {
	SubjectID         int64
	LastFullAt        *time.Time
	LastIncrementalAt *time.Time
	Cursors           map[string]string
	RateLimitResetAt  *time.Time
	UpdatedAt         time.Time
}

// Statistics is the normalized per-subject aggregate computed from facts.
type Statistics struct {
	SubjectID    int64
	Commits      int
	Issues       int
	PullRequests int
	Repositories int
	Score        float64
	ComputedAt   time.Time
}

// PlatformStatistics is the platform-wide average over every subject's
// statistics row. One row per database, recomputed lazily.
type PlatformStatistics struct {
	AvgCommits      float64
	AvgIssues       float64
	AvgPullRequests float64
	AvgRepositories float64
	AvgScore        float64
	Subjects        int
	ComputedAt      time.Time
}

// OutboxStatus represents the publish state of an outbox row.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
)

// OutboxMessage is a domain event written in the same transaction as the
// state change it describes. Only the publisher mutates status.
type OutboxMessage struct {
	ID          int64
	MessageID   string
	EventType   string
	Payload     []byte
	Status      OutboxStatus
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// ProcessedMessage is the idempotency ledger. A row for a message id means
// the consumer side effect was already applied.
type ProcessedMessage struct {
	MessageID   string
	EventType   string
	ProcessedAt time.Time
}

// Notification is a consumer-side effect row shown to the user later.
type Notification struct {
	ID        int64
	SubjectID int64
	Kind      string
	Title     string
	Body      string
	CreatedAt time.Time
}

// Achievement is one earned evaluation result.
type Achievement struct {
	ID        int64
	SubjectID int64
	Name      string
	Points    int
	EarnedAt  time.Time
}
