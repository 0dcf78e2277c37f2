// Package app provides the payment use cases.
//
// StreamManager meters per-minute rates into periodic transfers, BoostService
// sends one-off payments, and EarningsService reconstructs creator earnings
// and payer spending from ledger history. All three depend on domain
// interfaces only; adapters are injected from cmd/server.
package app
