package launcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"harvester/internal/logger"
	"harvester/internal/store"
)

type fakeSubjects struct {
	ids []int64
}

func (f *fakeSubjects) GetSubject(ctx context.Context, id int64) (*store.Subject, error) {
	return &store.Subject{ID: id}, nil
}

func (f *fakeSubjects) ActiveSubjectIDs(ctx context.Context) ([]int64, error) {
	return f.ids, nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	submits  []int64
	prios    []store.Priority
	absorbed map[int64]bool
}

func (f *fakeSubmitter) Submit(subjectID int64, priority store.Priority) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.absorbed[subjectID] {
		return false
	}
	f.submits = append(f.submits, subjectID)
	f.prios = append(f.prios, priority)
	return true
}

func (f *fakeSubmitter) submitted() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.submits...)
}

type armedTimer struct {
	subject int64
	delay   time.Duration
	fn      func()
}

func newTestRecovery(subjects *fakeSubjects, execs *fakeExecutions, sub Submitter, now time.Time) (*Recovery, *[]armedTimer) {
	r := NewRecovery(subjects, execs, sub, 2*time.Hour, logger.New())
	r.clock = func() time.Time { return now }

	timers := &[]armedTimer{}
	r.schedule = func(d time.Duration, fn func()) *time.Timer {
		*timers = append(*timers, armedTimer{delay: d, fn: fn})
		return nil
	}
	return r, timers
}

func TestRecover_OverdueSubmitsImmediately(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-3 * time.Hour) // next run was due an hour ago

	execs := &fakeExecutions{lastRuns: map[int64]*time.Time{1: &stale}}
	sub := &fakeSubmitter{}
	r, timers := newTestRecovery(&fakeSubjects{ids: []int64{1}}, execs, sub, now)

	if err := r.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if got := sub.submitted(); len(got) != 1 || got[0] != 1 {
		t.Errorf("got submits %v, want [1]", got)
	}
	if sub.prios[0] != store.PriorityLow {
		t.Errorf("got priority %s, want LOW", sub.prios[0])
	}
	if len(*timers) != 0 {
		t.Errorf("expected no armed timers, got %d", len(*timers))
	}
}

func TestRecover_NeverRanSubmitsImmediately(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	execs := &fakeExecutions{lastRuns: map[int64]*time.Time{}}
	sub := &fakeSubmitter{}
	r, _ := newTestRecovery(&fakeSubjects{ids: []int64{7}}, execs, sub, now)

	if err := r.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if got := sub.submitted(); len(got) != 1 || got[0] != 7 {
		t.Errorf("got submits %v, want [7]", got)
	}
}

func TestRecover_FutureArmsTimerForRemainingWait(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-30 * time.Minute) // next run in 90 minutes

	execs := &fakeExecutions{lastRuns: map[int64]*time.Time{1: &recent}}
	sub := &fakeSubmitter{}
	r, timers := newTestRecovery(&fakeSubjects{ids: []int64{1}}, execs, sub, now)

	if err := r.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if len(sub.submitted()) != 0 {
		t.Errorf("expected no immediate submits, got %v", sub.submitted())
	}
	if len(*timers) != 1 {
		t.Fatalf("expected 1 armed timer, got %d", len(*timers))
	}
	if got, want := (*timers)[0].delay, 90*time.Minute; got != want {
		t.Errorf("got timer delay %s, want %s", got, want)
	}

	// Fire the timer; the deferred submission goes in at LOW.
	(*timers)[0].fn()
	if got := sub.submitted(); len(got) != 1 || got[0] != 1 {
		t.Errorf("after firing: got submits %v, want [1]", got)
	}
	if sub.prios[0] != store.PriorityLow {
		t.Errorf("got priority %s, want LOW", sub.prios[0])
	}
}

func TestRecover_MixedPopulation(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-5 * time.Hour)
	recent := now.Add(-time.Hour)

	execs := &fakeExecutions{lastRuns: map[int64]*time.Time{
		1: &stale,
		2: &recent,
	}}
	sub := &fakeSubmitter{}
	r, timers := newTestRecovery(&fakeSubjects{ids: []int64{1, 2, 3}}, execs, sub, now)

	if err := r.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	// 1 is overdue, 3 never ran: both immediate. 2 waits another hour.
	if got := sub.submitted(); len(got) != 2 {
		t.Errorf("got submits %v, want [1 3]", got)
	}
	if len(*timers) != 1 {
		t.Errorf("expected 1 armed timer, got %d", len(*timers))
	}
}

func TestResubmitAll_CountsOnlyAccepted(t *testing.T) {
	sub := &fakeSubmitter{absorbed: map[int64]bool{2: true}}
	r := NewRecovery(&fakeSubjects{ids: []int64{1, 2, 3}}, &fakeExecutions{}, sub, 2*time.Hour, logger.New())

	if err := r.ResubmitAll(context.Background()); err != nil {
		t.Fatalf("ResubmitAll failed: %v", err)
	}

	if got := sub.submitted(); len(got) != 2 {
		t.Errorf("got submits %v, want two accepted", got)
	}
	for _, p := range sub.prios {
		if p != store.PriorityLow {
			t.Errorf("got priority %s, want LOW", p)
		}
	}
}
