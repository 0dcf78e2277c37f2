package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/domain"
	apperrors "github.com/pscheid92/peakstream/internal/platform/errors"
	"github.com/shopspring/decimal"
)

type sendBoostRequest struct {
	Creator   string          `json:"creator"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
	ContentID string          `json:"content_id"`
}

func (s *Server) registerBoostRoutes(api *echo.Group) {
	api.POST("/boosts", s.handleSendBoost)
	api.GET("/boosts", s.handleListBoosts)
}

func (s *Server) handleSendBoost(c echo.Context) error {
	var req sendBoostRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	boost, err := s.boosts.SendBoost(c.Request().Context(), domain.SendBoostRequest(req))
	if err != nil {
		return domainError(err, "failed to send boost").
			WithField("creator", req.Creator).
			WithField("amount", req.Amount.String())
	}
	return writeJSON(c, http.StatusCreated, boost)
}

func (s *Server) handleListBoosts(c echo.Context) error {
	if s.boostArchive == nil {
		return apperrors.UnavailableError("boost archive is not configured")
	}

	limit, err := intQuery(c, "limit", defaultListLimit)
	if err != nil {
		return err
	}

	creator := c.QueryParam("creator")
	boosts, err := s.boostArchive.ListBoosts(c.Request().Context(), creator, limit)
	if err != nil {
		return apperrors.InternalError("failed to list boosts", err).WithField("creator", creator)
	}

	if boosts == nil {
		boosts = []domain.Boost{}
	}
	return writeOK(c, map[string]any{"boosts": boosts})
}
