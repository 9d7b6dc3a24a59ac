package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
	"github.com/lumenquant/tradingcore/internal/indicator"
)

// MACrossover emits BUY when the fast SMA crosses above the slow SMA and
// SELL when it crosses below.
type MACrossover struct {
	id         string
	fastPeriod int
	slowPeriod int
	enabled    bool

	lastFastAboveSlow map[string]bool
}

// NewMACrossover builds a crossover strategy instance with the given fast
// and slow SMA periods.
func NewMACrossover(id string, fastPeriod, slowPeriod int) *MACrossover {
	return &MACrossover{
		id:                id,
		fastPeriod:        fastPeriod,
		slowPeriod:        slowPeriod,
		enabled:           true,
		lastFastAboveSlow: make(map[string]bool),
	}
}

func (s *MACrossover) ID() string      { return s.id }
func (s *MACrossover) Version() string { return "1.0.0" }
func (s *MACrossover) Enabled() bool   { return s.enabled }
func (s *MACrossover) MinBars() int    { return s.slowPeriod }

// SetEnabled toggles whether the engine should evaluate this strategy.
func (s *MACrossover) SetEnabled(enabled bool) { s.enabled = enabled }

// Evaluate computes fast/slow SMAs over the close price series and signals
// on a crossover, not merely on current relative position — this avoids
// re-emitting the same signal every bar while the crossover condition
// holds.
func (s *MACrossover) Evaluate(ctx Context) *domain.Signal {
	closes := ctx.ClosePrices()
	if len(closes) < s.slowPeriod {
		return nil
	}

	fast := indicator.SMA(closes, s.fastPeriod)
	slow := indicator.SMA(closes, s.slowPeriod)
	fastAboveSlow := fast.GreaterThan(slow)

	prev, seen := s.lastFastAboveSlow[ctx.Symbol]
	s.lastFastAboveSlow[ctx.Symbol] = fastAboveSlow

	if !seen || prev == fastAboveSlow {
		return nil
	}

	action := domain.SignalActionSell
	if fastAboveSlow {
		action = domain.SignalActionBuy
	}

	confidence := fast.Sub(slow).Abs().Div(slow).Abs()
	if confidence.GreaterThan(decimal.NewFromInt(1)) {
		confidence = decimal.NewFromInt(1)
	}

	return &domain.Signal{
		StrategyID:  s.id,
		Symbol:      ctx.Symbol,
		Action:      action,
		Confidence:  confidence,
		Reason:      "sma crossover",
		GeneratedAt: time.Now(),
	}
}
