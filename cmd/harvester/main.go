// The harvester daemon: trigger ingestion, priority job launching, the
// collection pipeline, the outbox publisher, and the event consumer, all
// in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"harvester/internal/broker"
	"harvester/internal/config"
	"harvester/internal/consumer"
	"harvester/internal/github"
	"harvester/internal/launcher"
	"harvester/internal/logger"
	"harvester/internal/observability"
	"harvester/internal/outbox"
	"harvester/internal/pipeline"
	"harvester/internal/pipeline/steps"
	"harvester/internal/store/postgres"
	"harvester/internal/trigger"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "harvester:", err)
		os.Exit(1)
	}
}

func run() error {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Observability.
	metricsHandler, metricsShutdown, err := observability.InitMetrics()
	if err != nil {
		return err
	}
	defer metricsShutdown(context.Background())

	tracerShutdown, err := observability.InitTracer(ctx, "harvester", cfg.OTELEndpoint)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	} else {
		defer tracerShutdown(context.Background())
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	// Storage.
	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	// Broker.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	streams := broker.NewStreams(rdb, log)

	// GitHub client.
	client := github.NewClient(cfg.GraphQLURL, log, metrics)

	// Pipeline.
	registry := pipeline.NewRegistry(log)
	for _, p := range steps.All(steps.Deps{
		Store: &steps.StoreSet{
			Subjects:   st,
			Facts:      st,
			Metadata:   st,
			Statistics: st,
			Platform:   st,
			NodeIDs:    st,
		},
		Client: client,
		Config: pipeline.ChunkConfig{
			ChunkSize:  cfg.ChunkSize,
			RetryLimit: cfg.RetryLimit,
			SkipLimit:  cfg.SkipLimit,
		},
		Logger:  log,
		Metrics: metrics,
	}) {
		registry.Register(p)
	}
	job := registry.Compose()
	log.Info("pipeline composed", "steps", job.StepNames())

	// Launcher and schedule.
	l := launcher.New(job, st, log, metrics, launcher.Options{
		Tick:    cfg.LauncherTick,
		Workers: cfg.WorkerPool,
	})

	recovery := launcher.NewRecovery(st, st, l, cfg.CollectInterval, log)
	if err := recovery.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover schedule: %w", err)
	}

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.ResubmitCron, func() {
		if err := recovery.ResubmitAll(ctx); err != nil {
			log.Error("resubmission failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid resubmit cron %q: %w", cfg.ResubmitCron, err)
	}
	sched.Start()
	defer sched.Stop()

	// Outbox and consumer.
	publisher := outbox.NewPublisher(st, streams, log, metrics, cfg.OutboxInterval, cfg.OutboxBatch)

	handlers := consumer.NewHandlers(st, st, st, st, log)
	events := consumer.New(streams, st, handlers.Map(),
		[]string{outbox.StreamEvaluation, outbox.StreamCompleted, outbox.StreamBalance},
		cfg.ConsumerGroup, cfg.ConsumerName, log, metrics)

	ingester := trigger.NewIngester(streams, l, cfg.TriggerStream, cfg.ConsumerGroup, cfg.ConsumerName, log)

	// Metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: mux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.Run(ctx) })
	g.Go(func() error { return publisher.Run(ctx) })
	g.Go(func() error { return events.Run(ctx) })
	g.Go(func() error { return ingester.Run(ctx) })
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	log.Info("harvester started", "metrics_port", cfg.MetricsPort)
	return g.Wait()
}
