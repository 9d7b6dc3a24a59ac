package fill

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// ErrShortingNotAllowed is returned when applying a fill would open or grow
// a short position while the resolved risk rule forbids it.
var ErrShortingNotAllowed = errors.New("fill: shorting not permitted for this symbol/strategy")

// applyToPosition folds one fill into the existing position, implementing
// the full BUY/SELL x long/short matrix: opening, adding to, reducing, and
// flipping through zero. Returns the updated position and the realized P&L
// delta this fill produced (zero unless the fill closed some or all of an
// existing position).
func applyToPosition(existing domain.Position, side domain.Side, fillQty, fillPrice decimal.Decimal, shortingAllowed bool) (domain.Position, decimal.Decimal, error) {
	qty := existing.Quantity
	avg := existing.AvgEntryPrice
	zero := decimal.Zero

	switch {
	case side == domain.SideBuy && qty.GreaterThanOrEqual(zero):
		// Opening or adding to a long position.
		newQty := qty.Add(fillQty)
		totalCost := avg.Mul(qty).Add(fillPrice.Mul(fillQty))
		newAvg := zero
		if !newQty.IsZero() {
			newAvg = totalCost.Div(newQty)
		}
		return domain.Position{Symbol: existing.Symbol, Quantity: newQty, AvgEntryPrice: newAvg}, zero, nil

	case side == domain.SideSell && qty.IsPositive():
		// Closing (and possibly flipping through) a long position.
		closeQty := decimal.Min(fillQty, qty)
		realized := fillPrice.Sub(avg).Mul(closeQty)
		newQty := qty.Sub(fillQty)
		switch {
		case newQty.IsZero():
			return domain.Position{Symbol: existing.Symbol, Quantity: zero, AvgEntryPrice: zero}, realized, nil
		case newQty.IsPositive():
			return domain.Position{Symbol: existing.Symbol, Quantity: newQty, AvgEntryPrice: avg}, realized, nil
		default:
			if !shortingAllowed {
				return domain.Position{}, zero, ErrShortingNotAllowed
			}
			return domain.Position{Symbol: existing.Symbol, Quantity: newQty, AvgEntryPrice: fillPrice}, realized, nil
		}

	case side == domain.SideSell && qty.LessThanOrEqual(zero):
		// Opening or adding to a short position.
		if !shortingAllowed {
			return domain.Position{}, zero, ErrShortingNotAllowed
		}
		newQty := qty.Sub(fillQty)
		totalCost := avg.Mul(qty.Abs()).Add(fillPrice.Mul(fillQty))
		newAvg := zero
		if !newQty.IsZero() {
			newAvg = totalCost.Div(newQty.Abs())
		}
		return domain.Position{Symbol: existing.Symbol, Quantity: newQty, AvgEntryPrice: newAvg}, zero, nil

	default: // side == domain.SideBuy && qty.IsNegative()
		// Closing (and possibly flipping through) a short position.
		closeQty := decimal.Min(fillQty, qty.Abs())
		realized := avg.Sub(fillPrice).Mul(closeQty)
		newQty := qty.Add(fillQty)
		switch {
		case newQty.IsZero():
			return domain.Position{Symbol: existing.Symbol, Quantity: zero, AvgEntryPrice: zero}, realized, nil
		case newQty.IsNegative():
			return domain.Position{Symbol: existing.Symbol, Quantity: newQty, AvgEntryPrice: avg}, realized, nil
		default:
			return domain.Position{Symbol: existing.Symbol, Quantity: newQty, AvgEntryPrice: fillPrice}, realized, nil
		}
	}
}
