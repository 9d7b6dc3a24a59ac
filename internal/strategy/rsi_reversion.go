package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
	"github.com/lumenquant/tradingcore/internal/indicator"
)

// RSIReversion emits BUY when RSI drops below its oversold threshold and
// SELL when it rises above its overbought threshold.
type RSIReversion struct {
	id        string
	period    int
	oversold  decimal.Decimal
	overbought decimal.Decimal
	enabled   bool
}

// NewRSIReversion builds an RSI mean-reversion strategy with the given
// lookback period and oversold/overbought thresholds (0-100 scale).
func NewRSIReversion(id string, period int, oversold, overbought decimal.Decimal) *RSIReversion {
	return &RSIReversion{
		id:         id,
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		enabled:    true,
	}
}

func (s *RSIReversion) ID() string      { return s.id }
func (s *RSIReversion) Version() string { return "1.0.0" }
func (s *RSIReversion) Enabled() bool   { return s.enabled }
func (s *RSIReversion) MinBars() int    { return s.period + 1 }

// SetEnabled toggles whether the engine should evaluate this strategy.
func (s *RSIReversion) SetEnabled(enabled bool) { s.enabled = enabled }

// Evaluate computes RSI over the close series and signals a reversion bet
// once the threshold is crossed.
func (s *RSIReversion) Evaluate(ctx Context) *domain.Signal {
	closes := ctx.ClosePrices()
	if len(closes) < s.period+1 {
		return nil
	}

	rsi := indicator.RSI(closes, s.period)

	var action domain.SignalAction
	switch {
	case rsi.LessThanOrEqual(s.oversold):
		action = domain.SignalActionBuy
	case rsi.GreaterThanOrEqual(s.overbought):
		action = domain.SignalActionSell
	default:
		return nil
	}

	// Confidence scales with distance past the threshold, capped at 1.
	var distance decimal.Decimal
	if action == domain.SignalActionBuy {
		distance = s.oversold.Sub(rsi)
	} else {
		distance = rsi.Sub(s.overbought)
	}
	confidence := distance.Div(decimal.NewFromInt(20))
	if confidence.GreaterThan(decimal.NewFromInt(1)) {
		confidence = decimal.NewFromInt(1)
	}
	if confidence.IsNegative() {
		confidence = decimal.Zero
	}

	return &domain.Signal{
		StrategyID:  s.id,
		Symbol:      ctx.Symbol,
		Action:      action,
		Confidence:  confidence,
		Reason:      "rsi reversion",
		GeneratedAt: time.Now(),
	}
}
