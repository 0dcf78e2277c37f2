package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/pscheid92/peakstream/internal/platform/config"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

type mockStreams struct {
	startFn      func(ctx context.Context, req domain.StartStreamRequest) (string, error)
	pauseFn      func(ctx context.Context, id string) bool
	resumeFn     func(ctx context.Context, id string) bool
	stopFn       func(ctx context.Context, id string) bool
	changeRateFn func(ctx context.Context, id string, rate decimal.Decimal) (string, error)
	getFn        func(id string) (domain.StreamSession, bool)
	activeFn     func() []domain.StreamSession
}

func (m *mockStreams) StartStreaming(ctx context.Context, req domain.StartStreamRequest) (string, error) {
	if m.startFn != nil {
		return m.startFn(ctx, req)
	}
	return "", errors.New("not implemented")
}

func (m *mockStreams) PauseStreaming(ctx context.Context, id string) bool {
	return m.pauseFn != nil && m.pauseFn(ctx, id)
}

func (m *mockStreams) ResumeStreaming(ctx context.Context, id string) bool {
	return m.resumeFn != nil && m.resumeFn(ctx, id)
}

func (m *mockStreams) StopStreaming(ctx context.Context, id string) bool {
	return m.stopFn != nil && m.stopFn(ctx, id)
}

func (m *mockStreams) ChangeRate(ctx context.Context, id string, rate decimal.Decimal) (string, error) {
	if m.changeRateFn != nil {
		return m.changeRateFn(ctx, id, rate)
	}
	return "", errors.New("not implemented")
}

func (m *mockStreams) GetStreamSession(id string) (domain.StreamSession, bool) {
	if m.getFn != nil {
		return m.getFn(id)
	}
	return domain.StreamSession{}, false
}

func (m *mockStreams) GetActiveStreams() []domain.StreamSession {
	if m.activeFn != nil {
		return m.activeFn()
	}
	return nil
}

func (m *mockStreams) AmountPerTick(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(decimal.NewFromInt(domain.TicksPerMinute)).Truncate(8)
}

type mockBoosts struct {
	sendFn func(ctx context.Context, req domain.SendBoostRequest) (domain.Boost, error)
}

func (m *mockBoosts) SendBoost(ctx context.Context, req domain.SendBoostRequest) (domain.Boost, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, req)
	}
	return domain.Boost{}, errors.New("not implemented")
}

type mockEarnings struct {
	earningsFn func(ctx context.Context, creator string, days int) (domain.EarningsSummary, error)
	spendingFn func(ctx context.Context, days int) (domain.SpendingSummary, error)
}

func (m *mockEarnings) CreatorEarnings(ctx context.Context, creator string, days int) (domain.EarningsSummary, error) {
	if m.earningsFn != nil {
		return m.earningsFn(ctx, creator, days)
	}
	return domain.EarningsSummary{}, errors.New("not implemented")
}

func (m *mockEarnings) TotalSpending(ctx context.Context, days int) (domain.SpendingSummary, error) {
	if m.spendingFn != nil {
		return m.spendingFn(ctx, days)
	}
	return domain.SpendingSummary{}, errors.New("not implemented")
}

// mockPrices quotes every pair at a fixed price.
type mockPrices struct {
	price decimal.Decimal
}

func (m *mockPrices) Price(_ context.Context, base, quote string) decimal.Decimal {
	if base == quote {
		return decimal.NewFromInt(1)
	}
	return m.price
}

func (m *mockPrices) Convert(_ context.Context, amount decimal.Decimal, _ string) decimal.Decimal {
	return amount.Mul(m.price)
}

type mockBoostArchive struct {
	listFn func(ctx context.Context, creator string, limit int) ([]domain.Boost, error)
}

func (m *mockBoostArchive) ListBoosts(ctx context.Context, creator string, limit int) ([]domain.Boost, error) {
	return m.listFn(ctx, creator, limit)
}

type mockSessionArchive struct {
	listFn func(ctx context.Context, creator string, limit int) ([]domain.ArchivedSession, error)
}

func (m *mockSessionArchive) ListSessions(ctx context.Context, creator string, limit int) ([]domain.ArchivedSession, error) {
	return m.listFn(ctx, creator, limit)
}

type mockMirror struct {
	sessions []domain.StreamSession
	err      error
}

func (m *mockMirror) List(_ context.Context) ([]domain.StreamSession, error) {
	return m.sessions, m.err
}

// --- Test helpers ---

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	return newTestServerWithConfig(t, testConfig(), deps)
}

func testConfig() *config.Config {
	return &config.Config{
		Port:         "0",
		TokenSymbol:  "PEAK",
		APIRateLimit: 1000,
		APIRateBurst: 1000,
	}
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config, deps Deps) *Server {
	t.Helper()

	if deps.Streams == nil {
		deps.Streams = &mockStreams{}
	}
	if deps.Boosts == nil {
		deps.Boosts = &mockBoosts{}
	}
	if deps.Earnings == nil {
		deps.Earnings = &mockEarnings{}
	}
	if deps.Prices == nil {
		deps.Prices = &mockPrices{price: dec("0.25")}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewFakeClockAt(testNow)
	}
	return NewServer(cfg, deps)
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}

// do sends a request through the full router and middleware chain.
func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func activeSession(id string) domain.StreamSession {
	return domain.StreamSession{
		ID:            id,
		Creator:       "creator",
		RatePerMinute: dec("0.6"),
		ContentID:     "ep-42",
		Metadata:      map[string]string{"title": "Episode 42"},
		StartTime:     testNow,
		TotalSent:     dec("0.3"),
		IsActive:      true,
	}
}

var _ http.Handler = (*Server)(nil)
