package app

import "github.com/shopspring/decimal"

// Tick outcomes reported to the Observer.
const (
	TickSent          = "sent"
	TickPausedBalance = "paused_low_balance"
	TickBalanceError  = "balance_error"
	TickTransferError = "transfer_error"
	TickSuperseded    = "superseded"
)

// Boost outcomes reported to the Observer.
const (
	BoostSent     = "sent"
	BoostRejected = "rejected"
	BoostFailed   = "failed"
)

// Observer receives payment outcomes, typically for metrics.
type Observer interface {
	ObserveTick(result string, amount decimal.Decimal)
	SetActiveStreams(n int)
	ObserveBoost(result string, amount decimal.Decimal)
}

type nopObserver struct{}

func (nopObserver) ObserveTick(string, decimal.Decimal)  {}
func (nopObserver) SetActiveStreams(int)                 {}
func (nopObserver) ObserveBoost(string, decimal.Decimal) {}
