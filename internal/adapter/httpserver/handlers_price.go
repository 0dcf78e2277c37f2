package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/domain"
	apperrors "github.com/pscheid92/peakstream/internal/platform/errors"
	"github.com/shopspring/decimal"
)

const defaultQuote = "USD"

func (s *Server) registerPriceRoutes(api *echo.Group) {
	api.GET("/price", s.handlePrice)
	api.POST("/price/refresh", s.handleRefreshPrices)
	api.GET("/rates/recommended", s.handleRecommendedRate)
}

func (s *Server) handlePrice(c echo.Context) error {
	base := strings.ToUpper(c.QueryParam("base"))
	if base == "" {
		base = s.config.TokenSymbol
	}
	quote := strings.ToUpper(c.QueryParam("quote"))
	if quote == "" {
		quote = defaultQuote
	}

	price := s.prices.Price(c.Request().Context(), base, quote)
	return writeOK(c, map[string]any{
		"base":  base,
		"quote": quote,
		"price": price,
	})
}

func (s *Server) handleRefreshPrices(c echo.Context) error {
	if s.refreshPrices == nil {
		return apperrors.UnavailableError("price refresh is not configured")
	}
	if err := s.refreshPrices(c.Request().Context()); err != nil {
		return apperrors.ExternalError("failed to refresh prices", err)
	}
	return writeJSON(c, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

type recommendedRate struct {
	ContentType   string          `json:"content_type"`
	RatePerMinute decimal.Decimal `json:"rate_per_minute"`
	AmountPerTick decimal.Decimal `json:"amount_per_tick"`
}

func (s *Server) handleRecommendedRate(c echo.Context) error {
	if contentType := strings.ToLower(c.QueryParam("type")); contentType != "" {
		return writeOK(c, s.recommendedRate(contentType))
	}

	types := domain.ContentTypes()
	rates := make([]recommendedRate, 0, len(types))
	for _, t := range types {
		rates = append(rates, s.recommendedRate(t))
	}
	return writeOK(c, map[string]any{"rates": rates})
}

func (s *Server) recommendedRate(contentType string) recommendedRate {
	rate := domain.RecommendedRate(contentType)
	return recommendedRate{
		ContentType:   contentType,
		RatePerMinute: rate,
		AmountPerTick: s.streams.AmountPerTick(rate),
	}
}
