package domain

import "errors"

var (
	ErrInvalidAccount        = errors.New("invalid account name")
	ErrInvalidRate           = errors.New("invalid rate")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrBelowMinimum          = errors.New("amount below minimum")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrLedgerUnavailable     = errors.New("ledger unavailable")
	ErrSessionNotFound       = errors.New("session not found")
	ErrInvalidWindow         = errors.New("window must be at least one day")
	ErrInvalidPaymentRequest = errors.New("invalid payment request")
)
