package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/shopspring/decimal"
)

type createInvoiceRequest struct {
	Merchant    string          `json:"merchant"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type parsePaymentRequest struct {
	Payload string `json:"payload"`
}

type paymentRequestResponse struct {
	domain.PaymentRequest
	URI string `json:"uri"`
}

func (s *Server) registerPaymentRequestRoutes(api *echo.Group) {
	api.POST("/payment-requests", s.handleCreatePaymentRequest)
	api.POST("/payment-requests/parse", s.handleParsePaymentRequest)
}

func (s *Server) handleCreatePaymentRequest(c echo.Context) error {
	var req createInvoiceRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	invoice, err := domain.NewInvoice(req.Merchant, req.Amount, req.Description, s.clock.Now())
	if err != nil {
		return domainError(err, "failed to create payment request").WithField("merchant", req.Merchant)
	}

	return writeJSON(c, http.StatusCreated, map[string]any{
		"invoice": invoice,
		"uri":     invoice.QR.URI(),
	})
}

func (s *Server) handleParsePaymentRequest(c echo.Context) error {
	var req parsePaymentRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	parsed, err := domain.ParsePaymentRequest(req.Payload)
	if err != nil {
		return domainError(err, "failed to parse payment request")
	}
	return writeOK(c, paymentRequestResponse{PaymentRequest: parsed, URI: parsed.URI()})
}
