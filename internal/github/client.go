// Package github issues paginated GraphQL queries against the GitHub API
// and salvages partial results when a mid-stream page fails.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"harvester/internal/observability"
)

// retryBackoff is the wait schedule between attempts of one page request.
var retryBackoff = []time.Duration{2 * time.Second, 8 * time.Second, 30 * time.Second}

const maxAttempts = 3

// RateLimitFunc receives the upstream rate limit headers after each
// response. Used to persist the reset time for schedule decisions.
type RateLimitFunc func(remaining int, resetAt time.Time)

// Client is the GraphQL harvesting client. All page fetches go through a
// shared rate limiter and a circuit breaker.
type Client struct {
	httpClient  *http.Client
	url         string
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	logger      *slog.Logger
	metrics     *observability.Metrics
	onRateLimit RateLimitFunc

	resetMu   sync.Mutex
	lastReset time.Time
}

// NewClient creates a harvesting client for the given GraphQL endpoint.
func NewClient(url string, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		metrics:    metrics,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		url:        url,
		// GitHub allows 5000 points/hour; stay well under it.
		limiter: rate.NewLimiter(rate.Limit(1), 5),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "github-graphql",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		logger: logger,
	}
}

// OnRateLimit installs the rate limit header callback.
func (c *Client) OnRateLimit(fn RateLimitFunc) {
	c.onRateLimit = fn
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// query runs one GraphQL document and decodes its data node into out.
// Transient upstream failures (5xx, 429, connection errors) are retried
// with backoff before the error surfaces.
func (c *Client) query(ctx context.Context, document string, variables map[string]any, token string, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: document, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := retryBackoff[attempt-2]
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		raw, retryable, err := c.post(ctx, body, token)
		if err == nil {
			return json.Unmarshal(raw, out)
		}

		lastErr = err
		if !retryable {
			break
		}
		c.logger.Warn("graphql request failed, retrying", "attempt", attempt, "error", err)
	}

	return lastErr
}

// post performs one HTTP attempt through the circuit breaker. The second
// return value reports whether the failure is worth retrying.
func (c *Client) post(ctx context.Context, body []byte, token string) (json.RawMessage, bool, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		c.recordRateLimit(resp)

		if resp.StatusCode != http.StatusOK {
			return nil, &httpError{status: resp.StatusCode}
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		var envelope graphQLEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("malformed response: %w", err)
		}
		if len(envelope.Errors) > 0 {
			return nil, fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
		}
		if len(envelope.Data) == 0 {
			return nil, fmt.Errorf("response carries no data node")
		}

		return envelope.Data, nil
	})
	if err != nil {
		return nil, isRetryable(err), err
	}

	return result.(json.RawMessage), false, nil
}

func (c *Client) recordRateLimit(resp *http.Response) {
	remaining, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	resetEpoch, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return
	}
	resetAt := time.Unix(resetEpoch, 0).UTC()

	c.resetMu.Lock()
	c.lastReset = resetAt
	c.resetMu.Unlock()

	if c.onRateLimit != nil {
		c.onRateLimit(remaining, resetAt)
	}
}

// LastRateLimitReset returns the most recent reset time the API reported,
// or false when no response carried the headers yet.
func (c *Client) LastRateLimitReset() (time.Time, bool) {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()
	return c.lastReset, !c.lastReset.IsZero()
}

type httpError struct {
	status int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

// isRetryable limits retries to upstream hiccups. Malformed payloads and
// GraphQL-level errors never succeed on replay, so they surface at once.
func isRetryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var he *httpError
	if errors.As(err, &he) {
		return he.status == http.StatusBadGateway ||
			he.status == http.StatusServiceUnavailable ||
			he.status == http.StatusTooManyRequests
	}

	var ue *url.Error
	return errors.As(err, &ue)
}
