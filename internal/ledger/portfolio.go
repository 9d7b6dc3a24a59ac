package ledger

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Portfolio adapts the ledger Store to the account-state snapshot the order
// use cases and risk engine need (order.Portfolio).
type Portfolio struct {
	store           *Store
	startingEquity  decimal.Decimal
}

// NewPortfolio builds a Portfolio view seeded with the account's starting
// capital; equity is reported as starting capital plus all realized P&L to
// date.
func NewPortfolio(store *Store, startingEquity decimal.Decimal) *Portfolio {
	return &Portfolio{store: store, startingEquity: startingEquity}
}

// Equity returns starting capital plus cumulative realized P&L.
func (p *Portfolio) Equity() decimal.Decimal {
	total, err := p.store.TotalRealizedPnL()
	if err != nil {
		log.Error().Err(err).Msg("❌ failed to sum realized pnl for equity snapshot")
		return p.startingEquity
	}
	return p.startingEquity.Add(total)
}

// PositionValue returns the current notional value (|qty| * avg entry price)
// held in a symbol.
func (p *Portfolio) PositionValue(symbol string) decimal.Decimal {
	pos, err := p.store.GetPosition(symbol)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("❌ failed to load position for value snapshot")
		return decimal.Zero
	}
	return pos.Quantity.Abs().Mul(pos.AvgEntryPrice)
}

// DailyPnL returns realized P&L recorded since local midnight.
func (p *Portfolio) DailyPnL() decimal.Decimal {
	total, err := p.store.DailyRealizedPnL(nil, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("❌ failed to sum daily realized pnl")
		return decimal.Zero
	}
	return total
}
