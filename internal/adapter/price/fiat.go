package price

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pscheid92/peakstream/internal/adapter/metrics"
	"github.com/pscheid92/peakstream/internal/platform/retry"
	"github.com/pscheid92/peakstream/internal/platform/version"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
)

const maxBody = 1 << 20

// fiatClient talks to the public HIVE/USD and FX rate APIs, each behind its
// own breaker so one dead provider does not block the other.
type fiatClient struct {
	http    *http.Client
	hiveURL string
	fxURL   string
	hiveCB  *gobreaker.CircuitBreaker
	fxCB    *gobreaker.CircuitBreaker
	metrics *metrics.UpstreamMetrics
}

func newFiatClient(hc *http.Client, hiveURL, fxURL string, m *metrics.UpstreamMetrics) *fiatClient {
	return &fiatClient{
		http:    hc,
		hiveURL: hiveURL,
		fxURL:   fxURL,
		hiveCB:  newBreaker("hive_price", m),
		fxCB:    newBreaker("fx_rates", m),
		metrics: m,
	}
}

func newBreaker(name string, m *metrics.UpstreamMetrics) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			m.SetBreakerState(name, to.String(), breakerGauge(to))
		},
	})
}

func breakerGauge(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	default:
		return metrics.BreakerClosed
	}
}

// hiveUSD reads {"hive":{"usd":0.23}}.
func (f *fiatClient) hiveUSD(ctx context.Context) (decimal.Decimal, error) {
	data, err := f.get(ctx, f.hiveCB, f.hiveURL)
	if err != nil {
		return decimal.Zero, err
	}
	return decimalAt(data, "hive.usd")
}

// usdRate reads {"rates":{"EUR":0.92,...}} for one currency.
func (f *fiatClient) usdRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	data, err := f.get(ctx, f.fxCB, f.fxURL)
	if err != nil {
		return decimal.Zero, err
	}
	return decimalAt(data, "rates."+currency)
}

func (f *fiatClient) get(ctx context.Context, cb *gobreaker.CircuitBreaker, url string) ([]byte, error) {
	start := time.Now()
	res, err := cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent(version.Service))

		resp, err := f.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &retry.StatusError{Code: resp.StatusCode}
		}
		return data, nil
	})
	f.metrics.ObserveRequest(cb.Name(), "get", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cb.Name(), err)
	}
	return res.([]byte), nil
}

// decimalAt parses a JSON number or numeric string at path without a float
// round trip.
func decimalAt(data []byte, path string) (decimal.Decimal, error) {
	r := gjson.GetBytes(data, path)
	switch r.Type {
	case gjson.Number:
		return decimal.NewFromString(r.Raw)
	case gjson.String:
		return decimal.NewFromString(r.Str)
	default:
		return decimal.Zero, fmt.Errorf("no numeric value at %q", path)
	}
}
