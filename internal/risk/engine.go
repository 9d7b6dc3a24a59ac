package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// Request is what an order use case submits for risk approval.
type Request struct {
	StrategyID string
	Symbol     string
	Side       domain.Side
	Price      decimal.Decimal
	Quantity   decimal.Decimal
}

// Approval is the risk gate's verdict.
type Approval struct {
	Approved     bool
	RejectReason string
	CheckFailed  string // which of the 7 named checks rejected, if any
}

// Named reject codes, one per ordered check run by Evaluate.
const (
	CheckKillSwitch          = "KILL_SWITCH"
	CheckDailyLossLimit      = "DAILY_LOSS_LIMIT"
	CheckMaxOpenOrders       = "MAX_OPEN_ORDERS"
	CheckOrderFrequency      = "ORDER_FREQUENCY_LIMIT"
	CheckPositionExposure    = "POSITION_EXPOSURE_LIMIT"
	CheckConsecutiveFailures = "CONSECUTIVE_FAILURES"
	CheckMarketClosed        = "MARKET_CLOSED"
)

// MarketCalendar reports whether the market is open at a point in time,
// satisfied directly by markethours.Calendar.
type MarketCalendar interface {
	IsOpen(t time.Time) bool
}

// PortfolioView is the read-only snapshot of account state the risk engine
// needs to evaluate a request, supplied by the order use cases so this
// package stays free of a dependency on the position ledger.
type PortfolioView struct {
	Equity         decimal.Decimal
	OpenOrderCount int
	PositionValue  map[string]decimal.Decimal // symbol -> current position value
	DailyPnL       decimal.Decimal
}

// Engine runs seven ordered pre-trade checks ahead of any venue submission:
//  1. kill switch state
//  2. daily loss limit
//  3. max open orders
//  4. order frequency (rolling one-minute window)
//  5. position exposure (max position value per symbol)
//  6. consecutive order failures
//  7. market hours
//
// Each check is named and independently testable rather than an ad hoc
// sequence of early returns. Shorting policy is not one of these checks —
// it is enforced by the fill processor against the resulting position, not
// pre-trade here.
type Engine struct {
	mu sync.Mutex

	rules      *RuleSet
	killSwitch *KillSwitch
	freq       *OrderFrequencyTracker
	calendar   MarketCalendar
}

// NewEngine builds a risk engine over the given rule set, kill switch, and
// market calendar. calendar may be nil, in which case market hours are not
// enforced by this gate.
func NewEngine(rules *RuleSet, killSwitch *KillSwitch, calendar MarketCalendar) *Engine {
	return &Engine{
		rules:      rules,
		killSwitch: killSwitch,
		freq:       NewOrderFrequencyTracker(),
		calendar:   calendar,
	}
}

// Evaluate runs the ordered checks and returns the first failure, or an
// approval if every check passes. now is explicit for deterministic tests.
func (e *Engine) Evaluate(req Request, portfolio PortfolioView, now time.Time) Approval {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule := e.rules.Resolve(req.StrategyID, req.Symbol)

	if state := e.killSwitch.State(); state == KillSwitchHalted {
		return e.reject(CheckKillSwitch, fmt.Sprintf("trading halted: %s", e.killSwitch.HaltReason()))
	}

	if !rule.DailyLossLimit.IsZero() && portfolio.DailyPnL.LessThan(rule.DailyLossLimit.Neg()) {
		return e.reject(CheckDailyLossLimit, fmt.Sprintf("daily P&L %s breaches limit %s", portfolio.DailyPnL, rule.DailyLossLimit.Neg()))
	}

	if rule.MaxOpenOrders > 0 && portfolio.OpenOrderCount >= rule.MaxOpenOrders {
		return e.reject(CheckMaxOpenOrders, fmt.Sprintf("open orders %d at or above limit %d", portfolio.OpenOrderCount, rule.MaxOpenOrders))
	}

	if rule.MaxOrdersPerMinute > 0 {
		key := req.StrategyID + "|" + req.Symbol
		if e.freq.CountInLastMinute(key, now) >= rule.MaxOrdersPerMinute {
			return e.reject(CheckOrderFrequency, fmt.Sprintf("order frequency at or above %d/min", rule.MaxOrdersPerMinute))
		}
	}

	if !rule.MaxPositionValue.IsZero() {
		notional := req.Price.Mul(req.Quantity)
		existing := portfolio.PositionValue[req.Symbol]
		if existing.Add(notional).GreaterThan(rule.MaxPositionValue) {
			return e.reject(CheckPositionExposure, fmt.Sprintf("position value would exceed limit %s", rule.MaxPositionValue))
		}
	}

	if e.killSwitch.ConsecutiveFailures() >= e.killSwitch.MaxConsecutiveFailures() {
		return e.reject(CheckConsecutiveFailures, fmt.Sprintf("consecutive failures %d at or above limit %d", e.killSwitch.ConsecutiveFailures(), e.killSwitch.MaxConsecutiveFailures()))
	}

	if e.calendar != nil && !e.calendar.IsOpen(now) {
		return e.reject(CheckMarketClosed, "market is closed")
	}

	key := req.StrategyID + "|" + req.Symbol
	e.freq.Record(key, now)

	return Approval{Approved: true}
}

func (e *Engine) reject(check, reason string) Approval {
	log.Warn().Str("check", check).Str("reason", reason).Msg("🚫 risk check rejected order")
	return Approval{Approved: false, RejectReason: reason, CheckFailed: check}
}

// RecordOutcome feeds an order result back into the kill switch.
func (e *Engine) RecordOutcome(success bool) KillSwitchState {
	if success {
		return e.killSwitch.RecordSuccess()
	}
	return e.killSwitch.RecordFailure("order submission failed")
}
