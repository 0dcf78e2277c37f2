package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/domain"
	apperrors "github.com/pscheid92/peakstream/internal/platform/errors"
	"github.com/shopspring/decimal"
)

type startStreamRequest struct {
	Creator       string            `json:"creator"`
	RatePerMinute decimal.Decimal   `json:"rate_per_minute"`
	ContentID     string            `json:"content_id"`
	Metadata      map[string]string `json:"metadata"`
}

type changeRateRequest struct {
	RatePerMinute decimal.Decimal `json:"rate_per_minute"`
}

type streamResponse struct {
	domain.StreamSession
	AmountPerTick decimal.Decimal `json:"amount_per_tick"`
}

func (s *Server) registerStreamRoutes(api *echo.Group) {
	api.POST("/streams", s.handleStartStream)
	api.GET("/streams", s.handleListStreams)
	api.GET("/streams/mirrored", s.handleListMirroredStreams)
	api.GET("/streams/archive", s.handleListArchivedStreams)
	api.GET("/streams/:id", s.handleGetStream)
	api.POST("/streams/:id/pause", s.handlePauseStream)
	api.POST("/streams/:id/resume", s.handleResumeStream)
	api.POST("/streams/:id/rate", s.handleChangeRate)
	api.DELETE("/streams/:id", s.handleStopStream)
}

func (s *Server) streamView(session domain.StreamSession) streamResponse {
	return streamResponse{StreamSession: session, AmountPerTick: s.streams.AmountPerTick(session.RatePerMinute)}
}

func (s *Server) handleStartStream(c echo.Context) error {
	var req startStreamRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	id, err := s.streams.StartStreaming(c.Request().Context(), domain.StartStreamRequest{
		Creator:       req.Creator,
		RatePerMinute: req.RatePerMinute,
		ContentID:     req.ContentID,
		Metadata:      req.Metadata,
	})
	if err != nil {
		return domainError(err, "failed to start streaming").WithField("creator", req.Creator)
	}

	session, ok := s.streams.GetStreamSession(id)
	if !ok {
		return apperrors.InternalError("session vanished after start", nil).WithField("session_id", id)
	}
	return writeJSON(c, http.StatusCreated, s.streamView(session))
}

func (s *Server) handleListStreams(c echo.Context) error {
	sessions := s.streams.GetActiveStreams()
	views := make([]streamResponse, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, s.streamView(session))
	}
	return writeOK(c, map[string]any{"streams": views})
}

func (s *Server) handleListMirroredStreams(c echo.Context) error {
	if s.mirror == nil {
		return apperrors.UnavailableError("session mirror is not configured")
	}

	sessions, err := s.mirror.List(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to read session mirror", err)
	}
	if sessions == nil {
		sessions = []domain.StreamSession{}
	}
	return writeOK(c, map[string]any{"streams": sessions})
}

func (s *Server) handleListArchivedStreams(c echo.Context) error {
	if s.sessionArchive == nil {
		return apperrors.UnavailableError("session archive is not configured")
	}

	limit, err := intQuery(c, "limit", defaultListLimit)
	if err != nil {
		return err
	}

	creator := c.QueryParam("creator")
	sessions, err := s.sessionArchive.ListSessions(c.Request().Context(), creator, limit)
	if err != nil {
		return apperrors.InternalError("failed to list archived sessions", err).WithField("creator", creator)
	}
	if sessions == nil {
		sessions = []domain.ArchivedSession{}
	}
	return writeOK(c, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetStream(c echo.Context) error {
	id := c.Param("id")
	session, ok := s.streams.GetStreamSession(id)
	if !ok {
		return apperrors.NotFoundError("session not found").WithField("session_id", id)
	}
	return writeOK(c, s.streamView(session))
}

func (s *Server) handlePauseStream(c echo.Context) error {
	id := c.Param("id")
	if !s.streams.PauseStreaming(c.Request().Context(), id) {
		return apperrors.NotFoundError("session not found").WithField("session_id", id)
	}
	return s.handleGetStream(c)
}

func (s *Server) handleResumeStream(c echo.Context) error {
	id := c.Param("id")
	if !s.streams.ResumeStreaming(c.Request().Context(), id) {
		if _, exists := s.streams.GetStreamSession(id); exists {
			return apperrors.ConflictError("session cannot be resumed").WithField("session_id", id)
		}
		return apperrors.NotFoundError("session not found").WithField("session_id", id)
	}
	return s.handleGetStream(c)
}

func (s *Server) handleChangeRate(c echo.Context) error {
	id := c.Param("id")

	var req changeRateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	newID, err := s.streams.ChangeRate(c.Request().Context(), id, req.RatePerMinute)
	if err != nil {
		return domainError(err, "failed to change rate").WithField("session_id", id)
	}

	session, ok := s.streams.GetStreamSession(newID)
	if !ok {
		return apperrors.InternalError("session vanished after rate change", nil).WithField("session_id", newID)
	}
	return writeOK(c, map[string]any{
		"previous_id": id,
		"session":     s.streamView(session),
	})
}

func (s *Server) handleStopStream(c echo.Context) error {
	id := c.Param("id")
	final, _ := s.streams.GetStreamSession(id)
	if !s.streams.StopStreaming(c.Request().Context(), id) {
		return apperrors.NotFoundError("session not found").WithField("session_id", id)
	}
	return writeOK(c, map[string]any{
		"status":     "stopped",
		"id":         id,
		"total_sent": final.TotalSent,
	})
}
