package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"harvester/internal/store"
)

// Submitter is the slice of the launcher the recovery needs.
type Submitter interface {
	Submit(subjectID int64, priority store.Priority) bool
}

// Recovery rebuilds the collection schedule after a restart. Timers are
// process-local, so a crash loses them; recovery re-derives each
// subject's next due time from its execution history.
type Recovery struct {
	subjects   store.SubjectStore
	executions store.ExecutionStore
	launcher   Submitter
	interval   time.Duration
	logger     *slog.Logger

	// Injection points for tests.
	clock    func() time.Time
	schedule func(d time.Duration, fn func()) *time.Timer
}

func NewRecovery(subjects store.SubjectStore, executions store.ExecutionStore, l Submitter, interval time.Duration, log *slog.Logger) *Recovery {
	return &Recovery{
		subjects:   subjects,
		executions: executions,
		launcher:   l,
		interval:   interval,
		logger:     log,
		clock:      time.Now,
		schedule:   time.AfterFunc,
	}
}

// Recover walks every active subject and either submits it now (overdue,
// or never collected) or arms a one-shot timer for its remaining wait.
// Submissions go in at LOW priority; recovery is routine work, not a user
// asking.
func (r *Recovery) Recover(ctx context.Context) error {
	ids, err := r.subjects.ActiveSubjectIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active subjects: %w", err)
	}

	now := r.clock()
	immediate, deferred := 0, 0

	for _, id := range ids {
		lastRun, err := r.executions.LastCompletedAt(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load last run for subject %d: %w", id, err)
		}

		if lastRun == nil {
			r.launcher.Submit(id, store.PriorityLow)
			immediate++
			continue
		}

		nextRun := lastRun.Add(r.interval)
		if !nextRun.After(now) {
			r.launcher.Submit(id, store.PriorityLow)
			immediate++
			continue
		}

		subjectID := id
		r.schedule(nextRun.Sub(now), func() {
			r.launcher.Submit(subjectID, store.PriorityLow)
		})
		deferred++
	}

	r.logger.Info("schedule recovered",
		"subjects", len(ids), "immediate", immediate, "deferred", deferred)
	return nil
}

// ResubmitAll queues every active subject at LOW priority. The cron
// schedule calls this; subjects already queued or running are absorbed by
// the launcher's dedup.
func (r *Recovery) ResubmitAll(ctx context.Context) error {
	ids, err := r.subjects.ActiveSubjectIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active subjects: %w", err)
	}

	submitted := 0
	for _, id := range ids {
		if r.launcher.Submit(id, store.PriorityLow) {
			submitted++
		}
	}

	r.logger.Info("routine resubmission", "subjects", len(ids), "submitted", submitted)
	return nil
}
