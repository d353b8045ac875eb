package pipeline

import (
	"context"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"harvester/internal/logger"
	"harvester/internal/observability"
)

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestChunkedStep_CountsSkippedItemsOnce(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	metrics, err := observability.NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	flaked := false
	step := &ChunkedStep{
		StepName: "test",
		Config:   ChunkConfig{ChunkSize: 10, RetryLimit: 1, SkipLimit: 5},
		Logger:   logger.New(),
		Metrics:  metrics,
		Read: func(ctx context.Context, rc *RunContext) ([]any, error) {
			return items(10), nil
		},
		Process: func(ctx context.Context, rc *RunContext, item any) error {
			switch item.(int) {
			case 2:
				return &BadItem{Err: fmt.Errorf("bad item %d", item)}
			case 9:
				if !flaked {
					flaked = true
					return &Transient{Err: fmt.Errorf("flaky item %d", item)}
				}
			}
			return nil
		},
	}

	if err := step.Execute(context.Background(), &RunContext{}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// Item 2 is re-skipped on the retry pass of the chunk; the counter must
	// still see it once.
	if got := counterTotal(t, reader, "harvester.items.skipped"); got != 1 {
		t.Errorf("items.skipped = %d, want 1", got)
	}
}
