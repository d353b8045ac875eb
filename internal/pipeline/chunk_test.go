package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"harvester/internal/logger"
)

func items(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestChunkedStep_ProcessesAllItems(t *testing.T) {
	processed := 0
	step := &ChunkedStep{
		StepName: "test",
		Config:   ChunkConfig{ChunkSize: 3, RetryLimit: 0, SkipLimit: 0},
		Logger:   logger.New(),
		Read: func(ctx context.Context, rc *RunContext) ([]any, error) {
			return items(10), nil
		},
		Process: func(ctx context.Context, rc *RunContext, item any) error {
			processed++
			return nil
		},
	}

	if err := step.Execute(context.Background(), &RunContext{}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if processed != 10 {
		t.Errorf("processed %d items, want 10", processed)
	}
}

func TestChunkedStep_SkipLimitBoundary(t *testing.T) {
	run := func(badItems int) error {
		step := &ChunkedStep{
			StepName: "test",
			Config:   ChunkConfig{ChunkSize: 10, RetryLimit: 0, SkipLimit: 2},
			Logger:   logger.New(),
			Read: func(ctx context.Context, rc *RunContext) ([]any, error) {
				return items(10), nil
			},
			Process: func(ctx context.Context, rc *RunContext, item any) error {
				if item.(int) < badItems {
					return &BadItem{Err: fmt.Errorf("bad item %d", item)}
				}
				return nil
			},
		}
		return step.Execute(context.Background(), &RunContext{})
	}

	// Exactly at the limit: tolerated.
	if err := run(2); err != nil {
		t.Errorf("2 bad items with skip limit 2 should pass, got %v", err)
	}

	// One past the limit: step-fatal.
	err := run(3)
	if err == nil {
		t.Fatal("3 bad items with skip limit 2 should fail")
	}
	if !strings.Contains(err.Error(), "skip limit") {
		t.Errorf("got %v, want a skip limit error", err)
	}
}

func TestChunkedStep_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	step := &ChunkedStep{
		StepName: "test",
		Config:   ChunkConfig{ChunkSize: 5, RetryLimit: 3, SkipLimit: 0},
		Logger:   logger.New(),
		Read: func(ctx context.Context, rc *RunContext) ([]any, error) {
			return items(5), nil
		},
		Process: func(ctx context.Context, rc *RunContext, item any) error {
			if item.(int) == 4 {
				attempts++
				if attempts <= 2 {
					return &Transient{Err: errors.New("connection reset")}
				}
			}
			return nil
		},
	}

	if err := step.Execute(context.Background(), &RunContext{}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("item attempted %d times, want 3", attempts)
	}
}

func TestChunkedStep_RetryLimitExhausted(t *testing.T) {
	step := &ChunkedStep{
		StepName: "test",
		Config:   ChunkConfig{ChunkSize: 5, RetryLimit: 3, SkipLimit: 0},
		Logger:   logger.New(),
		Read: func(ctx context.Context, rc *RunContext) ([]any, error) {
			return items(1), nil
		},
		Process: func(ctx context.Context, rc *RunContext, item any) error {
			return &Transient{Err: errors.New("still down")}
		},
	}

	err := step.Execute(context.Background(), &RunContext{})
	if err == nil {
		t.Fatal("expected retry exhaustion error")
	}
	if !strings.Contains(err.Error(), "retry limit") {
		t.Errorf("got %v, want a retry limit error", err)
	}
}

func TestChunkedStep_RetryDoesNotDoubleCountSkips(t *testing.T) {
	// Chunk of 5: items 0 and 1 are bad, item 4 is transient on the first
	// attempt. The retry re-skips 0 and 1, which must not burn extra skip
	// budget.
	firstAttempt := true
	step := &ChunkedStep{
		StepName: "test",
		Config:   ChunkConfig{ChunkSize: 5, RetryLimit: 2, SkipLimit: 2},
		Logger:   logger.New(),
		Read: func(ctx context.Context, rc *RunContext) ([]any, error) {
			return items(5), nil
		},
		Process: func(ctx context.Context, rc *RunContext, item any) error {
			switch item.(int) {
			case 0, 1:
				return &BadItem{Err: errors.New("malformed")}
			case 4:
				if firstAttempt {
					firstAttempt = false
					return &Transient{Err: errors.New("blip")}
				}
			}
			return nil
		},
	}

	if err := step.Execute(context.Background(), &RunContext{}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestChunkedStep_OtherErrorIsFatal(t *testing.T) {
	fatal := errors.New("constraint violation")
	step := &ChunkedStep{
		StepName: "test",
		Config:   ChunkConfig{ChunkSize: 5, RetryLimit: 3, SkipLimit: 10},
		Logger:   logger.New(),
		Read: func(ctx context.Context, rc *RunContext) ([]any, error) {
			return items(5), nil
		},
		Process: func(ctx context.Context, rc *RunContext, item any) error {
			return fatal
		},
	}

	err := step.Execute(context.Background(), &RunContext{})
	if !errors.Is(err, fatal) {
		t.Errorf("got %v, want the fatal error unwrapped", err)
	}
}

func TestChunkedStep_EmptyReadIsNoop(t *testing.T) {
	step := &ChunkedStep{
		StepName: "test",
		Config:   DefaultChunkConfig(),
		Logger:   logger.New(),
		Read: func(ctx context.Context, rc *RunContext) ([]any, error) {
			return nil, nil
		},
		Process: func(ctx context.Context, rc *RunContext, item any) error {
			t.Fatal("process should not be called")
			return nil
		},
	}

	if err := step.Execute(context.Background(), &RunContext{}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}
