package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle quotes the price of one unit of base in quote.
// It never fails: on upstream errors it serves the last known value or a default.
type PriceOracle interface {
	Price(ctx context.Context, base, quote string) decimal.Decimal
}
