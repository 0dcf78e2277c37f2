package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxRecentBoosts caps EarningsSummary.Boosts.
const MaxRecentBoosts = 10

// BoostRecord is a boost reconstructed from ledger history.
type BoostRecord struct {
	From      string          `json:"from"`
	Amount    decimal.Decimal `json:"amount"`
	ContentID string          `json:"content_id"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	TxID      string          `json:"tx_id"`
}

// EarningsSummary is derived from a creator's incoming transfers inside a
// window. TotalEarnings always equals StreamingEarnings + BoostEarnings;
// incoming transfers without a value-for-value memo are only reported in
// UntaggedEarnings. Transactions counts every incoming transfer in the window.
type EarningsSummary struct {
	Creator           string          `json:"creator"`
	WindowDays        int             `json:"window_days"`
	TotalEarnings     decimal.Decimal `json:"total_earnings"`
	StreamingEarnings decimal.Decimal `json:"streaming_earnings"`
	BoostEarnings     decimal.Decimal `json:"boost_earnings"`
	UntaggedEarnings  decimal.Decimal `json:"untagged_earnings"`
	Boosts            []BoostRecord   `json:"boosts"`
	Transactions      int             `json:"transactions"`
}

// SpendingSummary is derived from the payer's outgoing tagged transfers.
type SpendingSummary struct {
	Account        string          `json:"account"`
	WindowDays     int             `json:"window_days"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	StreamingSpent decimal.Decimal `json:"streaming_spent"`
	BoostSpent     decimal.Decimal `json:"boost_spent"`
	AveragePerDay  decimal.Decimal `json:"average_per_day"`
}
