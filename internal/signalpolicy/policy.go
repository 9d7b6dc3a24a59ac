// Package signalpolicy gates raw strategy signals before they reach risk
// checks: a signal must be fresh (within its TTL) and respect a cooldown
// after the last accepted signal for the same symbol+strategy; a repeat of
// the last accepted action inside that cooldown is reported as a duplicate.
// State is tracked in a sync.Mutex-guarded map keyed by symbol+strategy;
// entries do not expire and are cleared only by Reset.
package signalpolicy

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// Config controls the gate's TTL and cooldown windows.
type Config struct {
	SignalTTL      time.Duration // a signal older than this is stale
	SymbolCooldown time.Duration // minimum time between accepted signals for a symbol+strategy
}

// DefaultConfig mirrors typical intraday cadences: a one-minute signal TTL
// and a five-minute cooldown per symbol+strategy.
func DefaultConfig() Config {
	return Config{
		SignalTTL:      time.Minute,
		SymbolCooldown: 5 * time.Minute,
	}
}

type symbolState struct {
	lastAction     domain.SignalAction
	lastAcceptedAt time.Time
}

// Gate applies TTL, cooldown, and duplicate-suppression checks to incoming
// signals.
type Gate struct {
	cfg Config

	mu    sync.Mutex
	state map[string]*symbolState // key: strategy|symbol
}

// NewGate builds a signal gate with the given configuration.
func NewGate(cfg Config) *Gate {
	return &Gate{
		cfg:   cfg,
		state: make(map[string]*symbolState),
	}
}

// Decision explains why a signal was accepted or rejected.
type Decision struct {
	Accept bool
	Reason string
}

// Evaluate applies the gate to a signal. now is passed explicitly so the
// gate's behavior is deterministic under test.
func (g *Gate) Evaluate(signal *domain.Signal, now time.Time) Decision {
	if signal == nil {
		return Decision{Accept: false, Reason: "nil signal"}
	}

	if now.Sub(signal.GeneratedAt) > g.cfg.SignalTTL {
		log.Debug().Str("symbol", signal.Symbol).Str("strategy", signal.StrategyID).Msg("⏱️ signal rejected: stale")
		return Decision{Accept: false, Reason: "signal TTL exceeded"}
	}

	if signal.Action == domain.SignalActionHold {
		return Decision{Accept: false, Reason: "HOLD carries no action"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := signal.StrategyID + "|" + signal.Symbol
	st, ok := g.state[key]
	if !ok {
		st = &symbolState{}
		g.state[key] = st
	}

	if !st.lastAcceptedAt.IsZero() && now.Sub(st.lastAcceptedAt) < g.cfg.SymbolCooldown {
		if st.lastAction == signal.Action {
			return Decision{Accept: false, Reason: "duplicate action within cooldown"}
		}
		return Decision{Accept: false, Reason: "symbol cooldown active"}
	}

	st.lastAction = signal.Action
	st.lastAcceptedAt = now
	return Decision{Accept: true, Reason: "accepted"}
}

// Reset clears all tracked symbol+strategy state.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = make(map[string]*symbolState)
}
