package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHandleStartup(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/startup", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	srv := newTestServer(t, Deps{HealthChecks: []HealthCheck{
		{Name: "redis", Check: healthOK},
		{Name: "postgres", Check: healthOK},
	}})

	err := srv.handleStartup(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"redis":"ok","postgres":"ok"}}`, rec.Body.String())
}

func TestHandleLiveness(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	srv := newTestServer(t, Deps{
		Clock: clock,
		Streams: &mockStreams{activeFn: func() []domain.StreamSession {
			return []domain.StreamSession{activeSession("a"), activeSession("b")}
		}},
	})
	clock.Advance(90 * time.Second)

	rec := do(t, srv, http.MethodGet, "/health/live", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","uptime":90,"active_streams":2,"streaming_per_minute":"1.2"}`, rec.Body.String())
}

func TestHandleLiveness_DoesNotRunChecks(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, Deps{HealthChecks: []HealthCheck{
		{Name: "postgres", Check: func(context.Context) error { calls.Add(1); return errors.New("down") }},
	}})

	rec := do(t, srv, http.MethodGet, "/health/live", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, calls.Load())
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no optional backends",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name: "all healthy",
			checks: []HealthCheck{
				{Name: "redis", Check: healthOK, Optional: true},
				{Name: "postgres", Check: healthOK},
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready","checks":{"redis":"ok","postgres":"ok"}}`,
		},
		{
			name: "optional redis down",
			checks: []HealthCheck{
				{Name: "redis", Check: healthErr("connection refused"), Optional: true},
				{Name: "postgres", Check: healthOK},
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"degraded","checks":{"redis":"connection refused","postgres":"ok"}}`,
		},
		{
			name: "postgres down",
			checks: []HealthCheck{
				{Name: "redis", Check: healthErr("connection refused"), Optional: true},
				{Name: "postgres", Check: healthErr("database unreachable")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unhealthy","checks":{"redis":"connection refused","postgres":"database unreachable"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{HealthChecks: tt.checks})

			rec := do(t, srv, http.MethodGet, "/health/ready", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHandleReadiness_ChecksRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	blocking := func(ctx context.Context) error {
		if started.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	srv := newTestServer(t, Deps{HealthChecks: []HealthCheck{
		{Name: "a", Check: blocking},
		{Name: "b", Check: blocking},
	}})

	rec := do(t, srv, http.MethodGet, "/health/ready", "")

	assert.Equal(t, http.StatusOK, rec.Code, "sequential checks would time out")
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rec := do(t, srv, http.MethodGet, "/version", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"version"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"build_time"`)
	assert.Contains(t, body, `"go_version"`)
}
