package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a transfer relative to the account whose history was queried.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// TransferRequest is a token transfer from the configured payer.
type TransferRequest struct {
	From   string
	To     string
	Amount decimal.Decimal
	Memo   string
}

// TransferReceipt identifies a broadcast transfer on chain.
type TransferReceipt struct {
	TransactionID string `json:"transaction_id"`
	BlockNum      int64  `json:"block_num"`
}

// LedgerTransaction is one transfer from an account's history.
type LedgerTransaction struct {
	ID        string
	Timestamp time.Time
	Direction Direction
	Amount    decimal.Decimal
	From      string
	To        string
	Memo      string
}

// Ledger is the token ledger the payment flows run against.
// Transfer failures wrap ErrTransferFailed. History is newest first.
type Ledger interface {
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
	Transfer(ctx context.Context, req TransferRequest) (TransferReceipt, error)
	History(ctx context.Context, account string, limit int) ([]LedgerTransaction, error)
}
