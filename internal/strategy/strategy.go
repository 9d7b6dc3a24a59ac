// Package strategy holds the plug-in strategy interface, a versioned
// registry, and a small set of concrete strategies that register into
// the trading engine and emit per-bar equity BUY/SELL signals (nil when
// there is nothing to act on).
package strategy

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// Context is the read-only view a strategy receives on each evaluation: the
// latest tick plus recent sealed bars for its symbol.
type Context struct {
	Symbol string
	Tick   domain.Tick
	Bars   []domain.Bar // oldest first, most recent last
}

// ClosePrices extracts the Close price series from Bars.
func (c Context) ClosePrices() []decimal.Decimal {
	out := make([]decimal.Decimal, len(c.Bars))
	for i, b := range c.Bars {
		out[i] = b.Close
	}
	return out
}

// Strategy is the interface every strategy implementation must satisfy.
type Strategy interface {
	// ID returns the strategy's stable identifier.
	ID() string

	// Version returns the strategy's semantic version, bumped whenever its
	// decision logic changes in a way callers should be able to tell apart.
	Version() string

	// Evaluate inspects the context and returns a signal, or nil if the
	// strategy has nothing to say this round.
	Evaluate(ctx Context) *domain.Signal

	// Enabled reports whether the strategy should currently be evaluated.
	Enabled() bool

	// MinBars is the minimum number of sealed bars Evaluate needs to
	// produce a meaningful signal.
	MinBars() int
}

// Registry holds the set of registered strategies, keyed by ID, and
// supports enabling/disabling without re-registering.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry builds an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy, replacing any existing strategy with the same
// ID.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID()] = s
}

// Get returns the strategy registered under id, if any.
func (r *Registry) Get(id string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	return s, ok
}

// Enabled returns every currently-enabled strategy.
func (r *Registry) Enabled() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		if s.Enabled() {
			out = append(out, s)
		}
	}
	return out
}

// All returns every registered strategy regardless of enabled state.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	return out
}

// ErrNotEnoughBars reports that fewer bars are available than a strategy
// needs. The strategies in this package return a nil signal in that case
// instead of this error.
type ErrNotEnoughBars struct {
	Strategy string
	Have     int
	Want     int
}

func (e *ErrNotEnoughBars) Error() string {
	return fmt.Sprintf("%s: have %d bars, need %d", e.Strategy, e.Have, e.Want)
}
