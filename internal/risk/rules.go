package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleScope selects how narrowly a RiskRule applies.
type RuleScope string

const (
	ScopeGlobal   RuleScope = "GLOBAL"
	ScopeStrategy RuleScope = "STRATEGY"
	ScopeSymbol   RuleScope = "SYMBOL"
)

// RiskRule is a single limit, optionally narrowed to a strategy and/or
// symbol. More specific rules override less specific ones for the same
// field when resolved.
type RiskRule struct {
	Scope                     RuleScope
	StrategyID                string // set when Scope is STRATEGY or narrower
	Symbol                    string // set when Scope is SYMBOL
	MaxPositionValue          decimal.Decimal
	MaxOpenOrders             int
	MaxOrdersPerMinute        int
	DailyLossLimit            decimal.Decimal
	ShortingAllowed           bool
}

// RuleSet holds one GLOBAL rule plus any number of STRATEGY/SYMBOL overrides
// and resolves the effective rule for a given strategy+symbol pair.
type RuleSet struct {
	global     RiskRule
	byStrategy map[string]RiskRule
	bySymbol   map[string]RiskRule
}

// NewRuleSet builds a rule set seeded with the GLOBAL rule; overrides are
// added with AddOverride.
func NewRuleSet(global RiskRule) *RuleSet {
	global.Scope = ScopeGlobal
	return &RuleSet{
		global:     global,
		byStrategy: make(map[string]RiskRule),
		bySymbol:   make(map[string]RiskRule),
	}
}

// AddOverride registers a STRATEGY- or SYMBOL-scoped rule.
func (rs *RuleSet) AddOverride(rule RiskRule) {
	switch rule.Scope {
	case ScopeStrategy:
		rs.byStrategy[rule.StrategyID] = rule
	case ScopeSymbol:
		rs.bySymbol[rule.Symbol] = rule
	}
}

// Resolve returns the effective rule for a strategy+symbol pair: a
// SYMBOL-scoped override wins over a STRATEGY-scoped override, which wins
// over GLOBAL, applied field by field so an override need not set every
// field.
func (rs *RuleSet) Resolve(strategyID, symbol string) RiskRule {
	effective := rs.global

	if r, ok := rs.byStrategy[strategyID]; ok {
		mergeRule(&effective, r)
	}
	if r, ok := rs.bySymbol[symbol]; ok {
		mergeRule(&effective, r)
	}
	return effective
}

func mergeRule(dst *RiskRule, src RiskRule) {
	if !src.MaxPositionValue.IsZero() {
		dst.MaxPositionValue = src.MaxPositionValue
	}
	if src.MaxOpenOrders != 0 {
		dst.MaxOpenOrders = src.MaxOpenOrders
	}
	if src.MaxOrdersPerMinute != 0 {
		dst.MaxOrdersPerMinute = src.MaxOrdersPerMinute
	}
	if !src.DailyLossLimit.IsZero() {
		dst.DailyLossLimit = src.DailyLossLimit
	}
	// ShortingAllowed has no natural "unset" sentinel; STRATEGY/SYMBOL
	// overrides are only registered when the operator explicitly intends
	// to flip this, so it always wins when an override exists at all.
	dst.ShortingAllowed = src.ShortingAllowed
}

// OrderFrequencyTracker counts order submissions in a rolling one-minute
// window per strategy+symbol key, used by the order-frequency check.
type OrderFrequencyTracker struct {
	windows map[string][]time.Time
}

// NewOrderFrequencyTracker builds an empty tracker.
func NewOrderFrequencyTracker() *OrderFrequencyTracker {
	return &OrderFrequencyTracker{windows: make(map[string][]time.Time)}
}

// Record registers an order submission at time t for the given key.
func (o *OrderFrequencyTracker) Record(key string, t time.Time) {
	o.windows[key] = append(o.windows[key], t)
}

// CountInLastMinute returns the number of submissions recorded for key
// within the minute preceding now, pruning older entries as a side effect.
func (o *OrderFrequencyTracker) CountInLastMinute(key string, now time.Time) int {
	cutoff := now.Add(-time.Minute)
	times := o.windows[key]

	pruned := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	o.windows[key] = pruned
	return len(pruned)
}
