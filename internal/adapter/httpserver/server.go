package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/adapter/metrics"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/pscheid92/peakstream/internal/platform/config"
	"github.com/shopspring/decimal"
)

type streamService interface {
	StartStreaming(ctx context.Context, req domain.StartStreamRequest) (string, error)
	PauseStreaming(ctx context.Context, id string) bool
	ResumeStreaming(ctx context.Context, id string) bool
	StopStreaming(ctx context.Context, id string) bool
	ChangeRate(ctx context.Context, id string, ratePerMinute decimal.Decimal) (string, error)
	GetStreamSession(id string) (domain.StreamSession, bool)
	GetActiveStreams() []domain.StreamSession
	AmountPerTick(ratePerMinute decimal.Decimal) decimal.Decimal
}

type boostService interface {
	SendBoost(ctx context.Context, req domain.SendBoostRequest) (domain.Boost, error)
}

type earningsService interface {
	CreatorEarnings(ctx context.Context, creator string, windowDays int) (domain.EarningsSummary, error)
	TotalSpending(ctx context.Context, windowDays int) (domain.SpendingSummary, error)
}

type priceService interface {
	Price(ctx context.Context, base, quote string) decimal.Decimal
	Convert(ctx context.Context, amount decimal.Decimal, quote string) decimal.Decimal
}

// sessionMirror lists sessions mirrored by every instance.
type sessionMirror interface {
	List(ctx context.Context) ([]domain.StreamSession, error)
}

// Deps are the services behind the API. Archives, the mirror, the price
// refresher and the feed are optional and their routes answer 503 when nil.
type Deps struct {
	Streams  streamService
	Boosts   boostService
	Earnings earningsService
	Prices   priceService

	BoostArchive   domain.BoostArchive
	SessionArchive domain.SessionArchive
	Mirror         sessionMirror
	RefreshPrices  func(ctx context.Context) error
	Feed           http.Handler

	Metrics        *metrics.HTTPMetrics
	MetricsHandler http.Handler
	HealthChecks   []HealthCheck
	Clock          clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	streams  streamService
	boosts   boostService
	earnings earningsService
	prices   priceService

	boostArchive   domain.BoostArchive
	sessionArchive domain.SessionArchive
	mirror         sessionMirror
	refreshPrices  func(ctx context.Context) error
	feed           http.Handler

	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler
	healthChecks   []HealthCheck
	startTime      time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:           e,
		config:         cfg,
		clock:          clock,
		streams:        deps.Streams,
		boosts:         deps.Boosts,
		earnings:       deps.Earnings,
		prices:         deps.Prices,
		boostArchive:   deps.BoostArchive,
		sessionArchive: deps.SessionArchive,
		mirror:         deps.Mirror,
		refreshPrices:  deps.RefreshPrices,
		feed:           deps.Feed,
		httpMetrics:    deps.Metrics,
		metricsHandler: deps.MetricsHandler,
		healthChecks:   deps.HealthChecks,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
