// Package price quotes the payment token against HIVE and fiat currencies.
//
// The token's HIVE price comes from the sidechain market, HIVE/USD from a
// public price API and USD/fiat from an exchange-rate API. Each component is
// cached for the configured TTL (memory, then an optional shared cache) and
// falls back to the last value seen, then to a fixed default.
package price

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/peakstream/internal/adapter/metrics"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	hive = "HIVE"
	usd  = "USD"

	divisionPrecision = 16
	defaultTimeout    = 10 * time.Second
)

var (
	// Served when an upstream has never answered.
	defaultTokenHive = decimal.Zero
	defaultHiveUSD   = decimal.RequireFromString("0.3")
	defaultFXRate    = decimal.NewFromInt(1)
)

// MarketSource is the sidechain market, usually the hiveengine client.
type MarketSource interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// SharedCache is an optional L2 shared between instances.
type SharedCache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool)
	Set(ctx context.Context, key string, v decimal.Decimal, ttl time.Duration)
}

type Config struct {
	Symbol       string
	HivePriceURL string
	FXRatesURL   string
	TTL          time.Duration
	Timeout      time.Duration
}

type Option func(*Oracle)

func WithSharedCache(c SharedCache) Option {
	return func(o *Oracle) { o.shared = c }
}

func WithPriceMetrics(m *metrics.PriceMetrics) Option {
	return func(o *Oracle) { o.metrics = m }
}

func WithUpstreamMetrics(m *metrics.UpstreamMetrics) Option {
	return func(o *Oracle) { o.upstream = m }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *Oracle) { o.httpClient = hc }
}

type Oracle struct {
	cfg    Config
	market MarketSource
	fiat   *fiatClient
	mem    *memoryCache
	group  singleflight.Group

	shared     SharedCache
	metrics    *metrics.PriceMetrics
	upstream   *metrics.UpstreamMetrics
	httpClient *http.Client
}

var _ domain.PriceOracle = (*Oracle)(nil)

func NewOracle(cfg Config, market MarketSource, clock clockwork.Clock, opts ...Option) *Oracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.Symbol = strings.ToUpper(cfg.Symbol)

	o := &Oracle{
		cfg:    cfg,
		market: market,
		mem:    newMemoryCache(cfg.TTL, clock),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	o.fiat = newFiatClient(o.httpClient, cfg.HivePriceURL, cfg.FXRatesURL, o.upstream)
	return o
}

// Price quotes one unit of base in quote. Symbols are case-insensitive.
// Anything that is neither the token, HIVE nor USD is treated as a fiat
// currency code. A zero result means no usable quote.
func (o *Oracle) Price(ctx context.Context, base, quote string) decimal.Decimal {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	if base == quote {
		return decimal.NewFromInt(1)
	}

	value := o.usdValue(ctx, base)
	switch {
	case quote == usd:
		return value
	case o.isFiat(quote):
		return value.Mul(o.fxRate(ctx, quote))
	default:
		q := o.usdValue(ctx, quote)
		if q.IsZero() {
			return decimal.Zero
		}
		return value.DivRound(q, divisionPrecision)
	}
}

// Convert values amount tokens in quote.
func (o *Oracle) Convert(ctx context.Context, amount decimal.Decimal, quote string) decimal.Decimal {
	return amount.Mul(o.Price(ctx, o.cfg.Symbol, quote))
}

// Invalidate drops every cached component from memory.
func (o *Oracle) Invalidate() {
	o.mem.clear()
}

func (o *Oracle) isFiat(code string) bool {
	return code != o.cfg.Symbol && code != hive && code != usd
}

func (o *Oracle) usdValue(ctx context.Context, asset string) decimal.Decimal {
	switch {
	case asset == usd:
		return decimal.NewFromInt(1)
	case asset == hive:
		return o.hiveUSD(ctx)
	case asset == o.cfg.Symbol:
		return o.tokenHive(ctx).Mul(o.hiveUSD(ctx))
	default:
		rate := o.fxRate(ctx, asset)
		if rate.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(1).DivRound(rate, divisionPrecision)
	}
}

func (o *Oracle) tokenHive(ctx context.Context) decimal.Decimal {
	return o.component(ctx, strings.ToLower(o.cfg.Symbol)+"_hive", defaultTokenHive, func(ctx context.Context) (decimal.Decimal, error) {
		return o.market.LastPrice(ctx, o.cfg.Symbol)
	})
}

func (o *Oracle) hiveUSD(ctx context.Context) decimal.Decimal {
	return o.component(ctx, "hive_usd", defaultHiveUSD, o.fiat.hiveUSD)
}

func (o *Oracle) fxRate(ctx context.Context, currency string) decimal.Decimal {
	return o.component(ctx, "usd_"+strings.ToLower(currency), defaultFXRate, func(ctx context.Context) (decimal.Decimal, error) {
		return o.fiat.usdRate(ctx, currency)
	})
}

// component resolves one cached price: memory, shared cache, then a single
// upstream fetch per key. The fetch is detached from the caller's context
// because concurrent callers share its result.
func (o *Oracle) component(ctx context.Context, key string, fallback decimal.Decimal, fetch func(context.Context) (decimal.Decimal, error)) decimal.Decimal {
	if v, ok := o.mem.fresh(key); ok {
		o.metrics.Hit("memory")
		return v
	}
	if o.shared != nil {
		if v, ok := o.shared.Get(ctx, key); ok {
			o.metrics.Hit("shared")
			o.mem.set(key, v)
			return v
		}
	}
	o.metrics.Miss()

	res, err, _ := o.group.Do(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Timeout)
		defer cancel()

		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		o.mem.set(key, v)
		if o.shared != nil {
			o.shared.Set(fctx, key, v, o.cfg.TTL)
		}
		return v, nil
	})
	if err == nil {
		return res.(decimal.Decimal)
	}

	if v, storedAt, ok := o.mem.last(key); ok {
		slog.WarnContext(ctx, "Price fetch failed, serving stale value", "component", key, "stored_at", storedAt, "error", err)
		o.metrics.Fallback(key, "stale")
		return v
	}
	slog.WarnContext(ctx, "Price fetch failed, serving default", "component", key, "default", fallback.String(), "error", err)
	o.metrics.Fallback(key, "default")
	return fallback
}
