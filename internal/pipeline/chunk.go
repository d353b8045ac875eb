package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"harvester/internal/observability"
)

// Transient marks an error as retryable within the same chunk: network
// blips, lock contention during a write.
type Transient struct {
	Err error
}

func (t *Transient) Error() string { return t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// IsTransient reports whether err is retry-worthy.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// BadItem marks one malformed upstream record. The item is skipped and
// counted against the step's skip budget; the job continues.
type BadItem struct {
	Err error
}

func (b *BadItem) Error() string { return b.Err.Error() }
func (b *BadItem) Unwrap() error { return b.Err }

func IsBadItem(err error) bool {
	var b *BadItem
	return errors.As(err, &b)
}

// ChunkConfig bounds the latency and blast radius of one chunked step.
type ChunkConfig struct {
	ChunkSize  int // items per chunk, the unit of retry
	RetryLimit int // transient retries of the same chunk
	SkipLimit  int // bad items tolerated across the whole step
}

// DefaultChunkConfig mirrors the step policy defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{ChunkSize: 50, RetryLimit: 3, SkipLimit: 10}
}

func (c ChunkConfig) normalized() ChunkConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 50
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.SkipLimit < 0 {
		c.SkipLimit = 0
	}
	return c
}

// ChunkedStep reads a batch of input items once, then processes them in
// bounded chunks. A transient failure retries the current chunk (the
// processor's existence checks make reprocessing idempotent); a bad item
// is skipped until the skip budget runs out.
type ChunkedStep struct {
	StepName string
	Config   ChunkConfig
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	// Read loads the step's entire input. The runner chunks it.
	Read func(ctx context.Context, rc *RunContext) ([]any, error)

	// Process handles one item. Wrap errors in Transient or BadItem to
	// select the fault policy; any other error is step-fatal.
	Process func(ctx context.Context, rc *RunContext, item any) error
}

func (s *ChunkedStep) Name() string { return s.StepName }

func (s *ChunkedStep) Execute(ctx context.Context, rc *RunContext) error {
	cfg := s.Config.normalized()

	items, err := s.Read(ctx, rc)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	skipped := 0
	for start := 0; start < len(items); start += cfg.ChunkSize {
		end := start + cfg.ChunkSize
		if end > len(items) {
			end = len(items)
		}

		if _, err := s.processChunk(ctx, rc, items[start:end], cfg, &skipped); err != nil {
			return err
		}
	}

	if skipped > 0 {
		s.Logger.Warn("step completed with skips", "step", s.StepName, "skipped", skipped)
	}
	return nil
}

// processChunk runs one chunk, retrying it on transient failures up to the
// retry limit. Returns the number of items processed.
func (s *ChunkedStep) processChunk(ctx context.Context, rc *RunContext, chunk []any, cfg ChunkConfig, skipped *int) (int, error) {
	var lastErr error
	skippedBefore := *skipped

	for attempt := 0; attempt <= cfg.RetryLimit; attempt++ {
		if attempt > 0 {
			s.Logger.Warn("retrying chunk", "step", s.StepName, "attempt", attempt, "error", lastErr)
			// A retry reprocesses the chunk from the top; do not count the
			// same bad items twice.
			*skipped = skippedBefore
		}

		processed, err := s.runChunkOnce(ctx, rc, chunk, cfg, skipped)
		if err == nil {
			// Skips are recorded once the chunk settles, so a retried
			// chunk does not inflate the counter.
			s.Metrics.ItemsSkipped(ctx, s.StepName, *skipped-skippedBefore)
			return processed, nil
		}
		if !IsTransient(err) {
			return 0, err
		}
		lastErr = err
	}

	return 0, fmt.Errorf("retry limit %d exhausted: %w", cfg.RetryLimit, lastErr)
}

func (s *ChunkedStep) runChunkOnce(ctx context.Context, rc *RunContext, chunk []any, cfg ChunkConfig, skipped *int) (int, error) {
	processed := 0
	for _, item := range chunk {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		err := s.Process(ctx, rc, item)
		if err == nil {
			processed++
			continue
		}

		if IsBadItem(err) {
			*skipped++
			s.Logger.Warn("skipping bad item", "step", s.StepName, "skipped", *skipped, "error", err)
			if *skipped > cfg.SkipLimit {
				return processed, fmt.Errorf("skip limit %d exceeded: %w", cfg.SkipLimit, err)
			}
			continue
		}

		return processed, err
	}
	return processed, nil
}
