package httpserver

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/app"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/shopspring/decimal"
)

const fiatPrecision = 2

type fiatValue struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}

type earningsResponse struct {
	domain.EarningsSummary
	Fiat *fiatValue `json:"fiat,omitempty"`
}

type spendingResponse struct {
	domain.SpendingSummary
	Fiat *fiatValue `json:"fiat,omitempty"`
}

func (s *Server) registerEarningsRoutes(api *echo.Group) {
	api.GET("/creators/:account/earnings", s.handleCreatorEarnings)
	api.GET("/spending", s.handleTotalSpending)
}

func (s *Server) handleCreatorEarnings(c echo.Context) error {
	ctx := c.Request().Context()
	account := c.Param("account")

	days, err := intQuery(c, "days", app.DefaultEarningsWindowDays)
	if err != nil {
		return err
	}

	summary, err := s.earnings.CreatorEarnings(ctx, account, days)
	if err != nil {
		return domainError(err, "failed to compute earnings").WithField("creator", account)
	}
	if summary.Boosts == nil {
		summary.Boosts = []domain.BoostRecord{}
	}

	return writeOK(c, earningsResponse{
		EarningsSummary: summary,
		Fiat:            s.fiatValue(c, summary.TotalEarnings),
	})
}

func (s *Server) handleTotalSpending(c echo.Context) error {
	days, err := intQuery(c, "days", app.DefaultSpendingWindowDays)
	if err != nil {
		return err
	}

	summary, err := s.earnings.TotalSpending(c.Request().Context(), days)
	if err != nil {
		return domainError(err, "failed to compute spending")
	}

	return writeOK(c, spendingResponse{
		SpendingSummary: summary,
		Fiat:            s.fiatValue(c, summary.TotalSpent),
	})
}

// fiatValue converts amount into the currency named by ?fiat=, or returns nil
// when the parameter is absent.
func (s *Server) fiatValue(c echo.Context, amount decimal.Decimal) *fiatValue {
	currency := strings.ToUpper(strings.TrimSpace(c.QueryParam("fiat")))
	if currency == "" || s.prices == nil {
		return nil
	}
	total := s.prices.Convert(c.Request().Context(), amount, currency).Round(fiatPrecision)
	return &fiatValue{Currency: currency, Total: total}
}
