package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentRequestType = "hive_engine_payment"
	PaymentSymbol      = "PEAK"

	paymentURIPrefix = "peakecoin:pay?"
	invoiceMemoType  = "payment_request"
)

// PaymentRequest is the payload wallets encode into a payment QR code.
type PaymentRequest struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	Memo   string          `json:"memo"`
}

// ParsePaymentRequest accepts either the JSON payload or the
// "peakecoin:pay?to=...&amount=...&memo=..." URI form and validates it.
func ParsePaymentRequest(raw string) (PaymentRequest, error) {
	raw = strings.TrimSpace(raw)

	var req PaymentRequest
	if rest, ok := strings.CutPrefix(raw, paymentURIPrefix); ok {
		q, err := url.ParseQuery(rest)
		if err != nil {
			return PaymentRequest{}, fmt.Errorf("%w: malformed uri: %v", ErrInvalidPaymentRequest, err)
		}
		amount, err := decimal.NewFromString(q.Get("amount"))
		if err != nil {
			return PaymentRequest{}, fmt.Errorf("%w: amount %q is not a number", ErrInvalidPaymentRequest, q.Get("amount"))
		}
		req = PaymentRequest{
			Type:   PaymentRequestType,
			Symbol: PaymentSymbol,
			To:     q.Get("to"),
			Amount: amount,
			Memo:   q.Get("memo"),
		}
	} else if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return PaymentRequest{}, fmt.Errorf("%w: %v", ErrInvalidPaymentRequest, err)
	}

	if err := req.Validate(); err != nil {
		return PaymentRequest{}, err
	}
	return req, nil
}

// Validate checks type, symbol, recipient and amount.
func (r PaymentRequest) Validate() error {
	if r.Type != PaymentRequestType {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidPaymentRequest, r.Type)
	}
	if r.Symbol != PaymentSymbol {
		return fmt.Errorf("%w: unsupported symbol %q", ErrInvalidPaymentRequest, r.Symbol)
	}
	if !ValidAccountName(r.To) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidPaymentRequest, ErrInvalidAccount, r.To)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPaymentRequest)
	}
	return nil
}

// URI renders the request in the compact peakecoin: URI form.
func (r PaymentRequest) URI() string {
	q := url.Values{}
	q.Set("to", r.To)
	q.Set("amount", r.Amount.String())
	if r.Memo != "" {
		q.Set("memo", r.Memo)
	}
	return paymentURIPrefix + q.Encode()
}

// Invoice is a merchant-side payment request together with its QR payload.
type Invoice struct {
	PaymentID   string          `json:"payment_id"`
	Merchant    string          `json:"merchant"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Memo        string          `json:"memo"`
	QR          PaymentRequest  `json:"qr"`
}

type invoiceMemo struct {
	Type            string          `json:"type"`
	PaymentID       string          `json:"paymentId"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Timestamp       string          `json:"timestamp"`
	MerchantAccount string          `json:"merchantAccount"`
}

// NewInvoice builds a payment request a customer wallet can scan and pay.
func NewInvoice(merchant string, amount decimal.Decimal, description string, now time.Time) (Invoice, error) {
	if !ValidAccountName(merchant) {
		return Invoice{}, fmt.Errorf("%w: %q", ErrInvalidAccount, merchant)
	}
	if !amount.IsPositive() {
		return Invoice{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPaymentRequest)
	}

	paymentID := fmt.Sprintf("peak_payment_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
	memo, err := json.Marshal(invoiceMemo{
		Type:            invoiceMemoType,
		PaymentID:       paymentID,
		Amount:          amount,
		Description:     description,
		Timestamp:       now.UTC().Format(time.RFC3339Nano),
		MerchantAccount: merchant,
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("failed to encode invoice memo: %w", err)
	}

	return Invoice{
		PaymentID:   paymentID,
		Merchant:    merchant,
		Amount:      amount,
		Description: description,
		Memo:        string(memo),
		QR: PaymentRequest{
			Type:   PaymentRequestType,
			Symbol: PaymentSymbol,
			To:     merchant,
			Amount: amount,
			Memo:   string(memo),
		},
	}, nil
}
