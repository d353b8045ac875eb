// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a
// Prometheus exporter. It returns the HTTP handler for the /metrics
// endpoint and a shutdown function for graceful cleanup on exit.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// Metrics bundles the harvester's counters. A nil *Metrics is valid and
// records nothing, so components never need to guard their call sites.
type Metrics struct {
	jobsLaunched  metric.Int64Counter
	jobsFinished  metric.Int64Counter
	pagesFetched  metric.Int64Counter
	factsWritten  metric.Int64Counter
	itemsSkipped  metric.Int64Counter
	outboxResults metric.Int64Counter
	consumerDupes metric.Int64Counter
	deadLettered  metric.Int64Counter
}

// NewMetrics registers the harvester instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("harvester")

	m := &Metrics{}
	var err error

	if m.jobsLaunched, err = meter.Int64Counter("harvester.jobs.launched"); err != nil {
		return nil, err
	}
	if m.jobsFinished, err = meter.Int64Counter("harvester.jobs.finished"); err != nil {
		return nil, err
	}
	if m.pagesFetched, err = meter.Int64Counter("harvester.pages.fetched"); err != nil {
		return nil, err
	}
	if m.factsWritten, err = meter.Int64Counter("harvester.facts.written"); err != nil {
		return nil, err
	}
	if m.itemsSkipped, err = meter.Int64Counter("harvester.items.skipped"); err != nil {
		return nil, err
	}
	if m.outboxResults, err = meter.Int64Counter("harvester.outbox.results"); err != nil {
		return nil, err
	}
	if m.consumerDupes, err = meter.Int64Counter("harvester.consumer.duplicates"); err != nil {
		return nil, err
	}
	if m.deadLettered, err = meter.Int64Counter("harvester.consumer.deadlettered"); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) JobLaunched(ctx context.Context) {
	if m == nil {
		return
	}
	m.jobsLaunched.Add(ctx, 1)
}

func (m *Metrics) JobFinished(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.jobsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) PageFetched(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.pagesFetched.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) FactWritten(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.factsWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) ItemsSkipped(ctx context.Context, step string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsSkipped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("step", step)))
}

func (m *Metrics) OutboxResult(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.outboxResults.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) ConsumerDuplicate(ctx context.Context) {
	if m == nil {
		return
	}
	m.consumerDupes.Add(ctx, 1)
}

func (m *Metrics) DeadLettered(ctx context.Context) {
	if m == nil {
		return
	}
	m.deadLettered.Add(ctx, 1)
}
