// Package fill processes broker fill notifications: validation, duplicate
// suppression, position/P&L application, and order state advancement, all
// in one transaction per fill, covering the full BUY/SELL long/short
// average-price and realized-P&L matrix.
package fill

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

var (
	minPrice    = decimal.NewFromInt(100)
	maxPrice    = decimal.NewFromInt(10_000_000)
	minQuantity = decimal.NewFromInt(1)
	maxQuantity = decimal.NewFromInt(1_000_000)
)

// Validate rejects a fill that fails any of the basic sanity bounds: price
// and quantity ranges, required identifiers, and a timestamp that can't lie
// in the future.
func Validate(f domain.Fill, now time.Time) error {
	if f.ID == "" || f.OrderID == "" || f.Symbol == "" {
		return fmt.Errorf("fill missing required identifiers")
	}
	if f.Price.LessThan(minPrice) || f.Price.GreaterThan(maxPrice) {
		return fmt.Errorf("fill price %s outside allowed range [%s, %s]", f.Price, minPrice, maxPrice)
	}
	if f.Quantity.LessThan(minQuantity) || f.Quantity.GreaterThan(maxQuantity) {
		return fmt.Errorf("fill quantity %s outside allowed range [%s, %s]", f.Quantity, minQuantity, maxQuantity)
	}
	if f.FilledAt.After(now) {
		return fmt.Errorf("fill timestamp %s is in the future", f.FilledAt)
	}
	return nil
}
