// Package launcher schedules collection jobs: a priority queue with
// subject-level dedup, drained by a fixed-tick driver into a bounded
// worker pool.
package launcher

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"harvester/internal/logger"
	"harvester/internal/observability"
	"harvester/internal/pipeline"
	"harvester/internal/store"
)

// Runner executes one composed collection job.
type Runner interface {
	Run(ctx context.Context, rc *pipeline.RunContext) error
}

// request is one queued launch. seq breaks priority ties so equal
// priorities dequeue in submission order.
type request struct {
	subjectID int64
	priority  store.Priority
	seq       uint64
	index     int
}

type requestHeap []*request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requestHeap) Push(x any) {
	r := x.(*request)
	r.index = len(*h)
	*h = append(*h, r)
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}

// Launcher owns the queue and the worker pool.
type Launcher struct {
	runner     Runner
	executions store.ExecutionStore
	logger     *slog.Logger
	metrics    *observability.Metrics

	tick  time.Duration
	slots chan struct{}
	clock func() time.Time

	mu      sync.Mutex
	heap    requestHeap
	queued  map[int64]struct{}
	running map[int64]struct{}
	seq     uint64

	wg sync.WaitGroup
}

// Options tunes the launcher. Zero values fall back to sane defaults.
type Options struct {
	Tick    time.Duration // queue drain interval
	Workers int           // concurrent job limit
}

func New(runner Runner, executions store.ExecutionStore, log *slog.Logger, metrics *observability.Metrics, opts Options) *Launcher {
	if opts.Tick <= 0 {
		opts.Tick = 100 * time.Millisecond
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	return &Launcher{
		runner:     runner,
		executions: executions,
		logger:     log,
		metrics:    metrics,
		tick:       opts.Tick,
		slots:      make(chan struct{}, opts.Workers),
		clock:      time.Now,
		queued:     make(map[int64]struct{}),
		running:    make(map[int64]struct{}),
	}
}

// Submit enqueues a collection request for the subject. Returns false when
// the subject is already queued or already running; the caller's request
// is absorbed by the in-flight one.
func (l *Launcher) Submit(subjectID int64, priority store.Priority) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.queued[subjectID]; ok {
		l.logger.Debug("submit absorbed, already queued", "subject", subjectID)
		return false
	}
	if _, ok := l.running[subjectID]; ok {
		l.logger.Debug("submit absorbed, already running", "subject", subjectID)
		return false
	}

	l.seq++
	heap.Push(&l.heap, &request{subjectID: subjectID, priority: priority, seq: l.seq})
	l.queued[subjectID] = struct{}{}

	l.logger.Info("collection queued", "subject", subjectID, "priority", priority.String())
	return true
}

// Depth returns the number of queued (not yet launched) requests.
func (l *Launcher) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heap.Len()
}

// Run drives the queue until ctx is cancelled, then waits for in-flight
// jobs to finish.
func (l *Launcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	l.logger.Info("launcher started", "tick", l.tick, "workers", cap(l.slots))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("launcher draining")
			l.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			l.drain(ctx)
		}
	}
}

// drain launches queued requests while worker slots are free. The highest
// priority request launches first; within a priority, oldest first.
func (l *Launcher) drain(ctx context.Context) {
	for {
		select {
		case l.slots <- struct{}{}:
		default:
			return
		}

		req := l.next()
		if req == nil {
			<-l.slots
			return
		}

		l.wg.Add(1)
		go l.launch(ctx, req)
	}
}

// next pops the top request and moves the subject from queued to running
// under one lock, so a concurrent Submit for the same subject is absorbed.
func (l *Launcher) next() *request {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.heap.Len() > 0 {
		req := heap.Pop(&l.heap).(*request)
		delete(l.queued, req.subjectID)

		// A stale queue entry can outlive a re-submit race; re-check at
		// dequeue so one subject never collects twice concurrently.
		if _, ok := l.running[req.subjectID]; ok {
			continue
		}

		l.running[req.subjectID] = struct{}{}
		return req
	}
	return nil
}

func (l *Launcher) launch(ctx context.Context, req *request) {
	defer l.wg.Done()
	defer func() { <-l.slots }()
	defer func() {
		l.mu.Lock()
		delete(l.running, req.subjectID)
		l.mu.Unlock()
	}()

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := l.logger.With("subject", req.subjectID, "run_id", runID)

	exec := &store.JobExecution{
		ID:        uuid.New(),
		SubjectID: req.subjectID,
		RunID:     runID,
		StartedAt: l.clock().UTC(),
		Outcome:   store.OutcomeRunning,
	}
	if err := l.executions.InsertExecution(ctx, exec); err != nil {
		log.Error("failed to record execution start", "error", err)
		return
	}

	l.metrics.JobLaunched(ctx)
	log.Info("collection started", "priority", req.priority.String())

	err := l.runJob(ctx, req, runID)

	outcome := store.OutcomeCompleted
	if err != nil {
		outcome = store.OutcomeFailed
		log.Error("collection failed", "error", err)
	} else {
		log.Info("collection completed")
	}

	if ferr := l.executions.FinishExecution(ctx, exec.ID, outcome, l.clock().UTC()); ferr != nil {
		log.Error("failed to record execution end", "error", ferr)
	}
	l.metrics.JobFinished(ctx, string(outcome))
}

// runJob isolates the panic recovery so a broken step cannot take the
// launcher down with it.
func (l *Launcher) runJob(ctx context.Context, req *request, runID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return l.runner.Run(ctx, &pipeline.RunContext{
		SubjectID: req.subjectID,
		RunID:     runID,
	})
}
