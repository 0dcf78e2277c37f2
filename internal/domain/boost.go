package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MinBoostAmount is the smallest boost accepted, inclusive.
var MinBoostAmount = decimal.RequireFromString("0.1")

// Boost is the immutable receipt of a one-off payment to a creator. Message
// holds the text as embedded in the memo, after truncation.
type Boost struct {
	ID        string          `json:"id"`
	Creator   string          `json:"creator"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
	ContentID string          `json:"content_id"`
	Timestamp time.Time       `json:"timestamp"`
	TxID      string          `json:"tx_id"`
}

// SendBoostRequest bundles the parameters of a boost.
type SendBoostRequest struct {
	Creator   string
	Amount    decimal.Decimal
	Message   string
	ContentID string
}

// BoostRecorder persists boost receipts after the transfer succeeded.
type BoostRecorder interface {
	SaveBoost(ctx context.Context, boost Boost) error
}

// BoostArchive lists previously recorded boosts, newest first.
type BoostArchive interface {
	ListBoosts(ctx context.Context, creator string, limit int) ([]Boost, error)
}
