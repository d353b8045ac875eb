// Package config handles environment variable loading for connection
// strings, scheduling intervals, and pipeline tuning knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the harvester.
type Config struct {
	// Database connection string
	DatabaseURL string

	// Redis address for the trigger log and the event broker
	RedisAddr string

	// GitHub GraphQL endpoint
	GraphQLURL string

	// Launcher driver tick and worker pool size
	LauncherTick time.Duration
	WorkerPool   int

	// Interval between routine collections of one subject; schedule
	// recovery computes next-due times from it
	CollectInterval time.Duration

	// Cron expression for the periodic LOW-priority resubmission of all subjects
	ResubmitCron string

	// Outbox publisher tick and per-tick batch bound
	OutboxInterval time.Duration
	OutboxBatch    int

	// Chunked step tuning
	ChunkSize  int
	RetryLimit int
	SkipLimit  int

	// Trigger stream and event consumer group identity
	TriggerStream string
	ConsumerGroup string
	ConsumerName  string

	// Metrics HTTP port and OTLP collector address
	MetricsPort  int
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisAddr:       envOr("REDIS_ADDR", "localhost:6379"),
		GraphQLURL:      envOr("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
		ResubmitCron:    envOr("RESUBMIT_CRON", "0 3 * * *"),
		TriggerStream:   envOr("TRIGGER_STREAM", "harvest.triggers"),
		ConsumerGroup:   envOr("CONSUMER_GROUP", "harvester"),
		ConsumerName:    envOr("CONSUMER_NAME", hostnameOr("harvester-1")),
		OTELEndpoint:    envOr("OTEL_ENDPOINT", "localhost:4317"),
		LauncherTick:    100 * time.Millisecond,
		WorkerPool:      1,
		CollectInterval: 2 * time.Hour,
		OutboxInterval:  5 * time.Second,
		OutboxBatch:     100,
		ChunkSize:       50,
		RetryLimit:      3,
		SkipLimit:       10,
		MetricsPort:     6162,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	if cfg.LauncherTick, err = durationOr("LAUNCHER_TICK", cfg.LauncherTick); err != nil {
		return nil, err
	}
	if cfg.CollectInterval, err = durationOr("COLLECT_INTERVAL", cfg.CollectInterval); err != nil {
		return nil, err
	}
	if cfg.OutboxInterval, err = durationOr("OUTBOX_INTERVAL", cfg.OutboxInterval); err != nil {
		return nil, err
	}
	if cfg.WorkerPool, err = intOr("WORKER_POOL", cfg.WorkerPool); err != nil {
		return nil, err
	}
	if cfg.OutboxBatch, err = intOr("OUTBOX_BATCH", cfg.OutboxBatch); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = intOr("CHUNK_SIZE", cfg.ChunkSize); err != nil {
		return nil, err
	}
	if cfg.RetryLimit, err = intOr("RETRY_LIMIT", cfg.RetryLimit); err != nil {
		return nil, err
	}
	if cfg.SkipLimit, err = intOr("SKIP_LIMIT", cfg.SkipLimit); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = intOr("METRICS_PORT", cfg.MetricsPort); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intOr(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
