package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/platform/version"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck is a named dependency check. A failing critical check makes the
// instance unready; a failing optional one only reports it as degraded.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	return s.writeHealth(c, s.checkDependencies(ctx))
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	return s.writeHealth(c, s.checkDependencies(ctx))
}

// handleLiveness never touches dependencies; it reports what this process is
// currently paying out.
func (s *Server) handleLiveness(c echo.Context) error {
	active := s.streams.GetActiveStreams()
	perMinute := decimal.Zero
	for _, session := range active {
		perMinute = perMinute.Add(session.RatePerMinute)
	}

	response := map[string]any{
		"status":               "ok",
		"uptime":               s.clock.Since(s.startTime).Seconds(),
		"active_streams":       len(active),
		"streaming_per_minute": perMinute,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// checkDependencies runs every check concurrently and waits for all of them.
func (s *Server) checkDependencies(ctx context.Context) healthReport {
	if len(s.healthChecks) == 0 {
		return healthReport{Status: "ready"}
	}

	results := make([]error, len(s.healthChecks))
	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			results[i] = hc.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := healthReport{Status: "ready", Checks: make(map[string]string, len(results))}
	for i, hc := range s.healthChecks {
		err := results[i]
		if err == nil {
			report.Checks[hc.Name] = "ok"
			continue
		}

		slog.WarnContext(ctx, "Health check failed", "check", hc.Name, "optional", hc.Optional, "error", err)
		report.Checks[hc.Name] = err.Error()
		switch {
		case !hc.Optional:
			report.Status = "unhealthy"
		case report.Status == "ready":
			report.Status = "degraded"
		}
	}
	return report
}

func (s *Server) writeHealth(c echo.Context, report healthReport) error {
	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	if err := c.JSON(status, report); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
