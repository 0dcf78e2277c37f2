// Package hiveengine implements domain.Ledger against the Hive-Engine
// sidechain: balances and market data over the contracts JSON-RPC API,
// history over the history API, and transfers through a signing relay that
// broadcasts the custom_json operation with the payer's active key.
package hiveengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pscheid92/peakstream/internal/adapter/metrics"
	"github.com/pscheid92/peakstream/internal/platform/correlation"
	"github.com/pscheid92/peakstream/internal/platform/retry"
	"github.com/pscheid92/peakstream/internal/platform/version"
)

const (
	service          = "hive_engine"
	maxResponseBytes = 4 << 20
	maxErrorBody     = 256
)

type Config struct {
	RPCURL       string
	HistoryURL   string
	BroadcastURL string
	Symbol       string
	Precision    int32
	Timeout      time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *metrics.UpstreamMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetryPolicy overrides the retry policy of read calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.readPolicy = p }
}

type Client struct {
	cfg        Config
	http       *http.Client
	breaker    circuitbreaker.CircuitBreaker[any]
	readPolicy retry.Policy
	metrics    *metrics.UpstreamMetrics
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		readPolicy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   250 * time.Millisecond,
			MaxBackoff:       2 * time.Second,
			RateLimitBackoff: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(3, 5).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed", "component", service, "from", e.OldState.String(), "to", e.NewState.String())
			c.metrics.SetBreakerState(service, e.NewState.String(), breakerGauge(e.NewState))
		}).
		Build()

	return c
}

func breakerGauge(state circuitbreaker.State) int {
	switch state {
	case circuitbreaker.HalfOpenState:
		return metrics.BreakerHalfOpen
	case circuitbreaker.OpenState:
		return metrics.BreakerOpen
	default:
		return metrics.BreakerClosed
	}
}

// RPCError is a JSON-RPC error object returned with HTTP 200.
type RPCError struct {
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// classifyRead never retries an open breaker or an RPC-level rejection.
func classifyRead(err error) retry.Action {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return retry.Stop
	}
	if _, ok := errors.AsType[*RPCError](err); ok {
		return retry.Stop
	}
	return retry.ClassifyHTTP(err)
}

// read runs an idempotent call behind the breaker with retries.
func (c *Client) read(ctx context.Context, operation string, call func() ([]byte, error)) ([]byte, error) {
	start := time.Now()
	data, err := retry.Do(ctx, c.readPolicy, classifyRead, func() ([]byte, error) {
		return c.guarded(call)
	})
	c.metrics.ObserveRequest(service, operation, time.Since(start), err)
	return data, err
}

// guarded runs call behind the breaker. Only upstream faults count as
// breaker failures; cancellations and 4xx rejections do not.
func (c *Client) guarded(call func() ([]byte, error)) ([]byte, error) {
	if !c.breaker.TryAcquirePermit() {
		return nil, fmt.Errorf("hive-engine circuit breaker open: %w", circuitbreaker.ErrOpen)
	}

	data, err := call()
	if err != nil && upstreamFault(err) {
		c.breaker.RecordError(err)
	} else {
		c.breaker.RecordSuccess()
	}
	return data, err
}

func upstreamFault(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if se, ok := errors.AsType[*retry.StatusError](err); ok {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	if _, ok := errors.AsType[*RPCError](err); ok {
		return false
	}
	return true
}

func (c *Client) postJSON(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, bytes.NewReader(payload))
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent(version.Service))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set(correlation.Header, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &retry.StatusError{Code: resp.StatusCode, Body: truncate(string(data), maxErrorBody)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
