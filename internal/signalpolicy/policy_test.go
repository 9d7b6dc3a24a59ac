package signalpolicy

import (
	"testing"
	"time"

	"github.com/lumenquant/tradingcore/internal/domain"
)

func TestGateRejectsStaleSignal(t *testing.T) {
	t.Parallel()
	g := NewGate(DefaultConfig())
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	sig := &domain.Signal{Symbol: "AAPL", Action: domain.SignalActionBuy, GeneratedAt: now.Add(-2 * time.Minute)}
	d := g.Evaluate(sig, now)
	if d.Accept {
		t.Error("expected stale signal to be rejected")
	}
}

func TestGateRejectsHold(t *testing.T) {
	t.Parallel()
	g := NewGate(DefaultConfig())
	now := time.Now()

	sig := &domain.Signal{Symbol: "AAPL", Action: domain.SignalActionHold, GeneratedAt: now}
	d := g.Evaluate(sig, now)
	if d.Accept {
		t.Error("HOLD should never be accepted")
	}
}

func TestGateAcceptsFreshSignalThenCoolsDown(t *testing.T) {
	t.Parallel()
	g := NewGate(Config{SignalTTL: time.Minute, SymbolCooldown: 5 * time.Minute})
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	first := &domain.Signal{Symbol: "AAPL", Action: domain.SignalActionBuy, GeneratedAt: now}
	d1 := g.Evaluate(first, now)
	if !d1.Accept {
		t.Fatalf("expected first signal accepted, got reason %q", d1.Reason)
	}

	second := &domain.Signal{Symbol: "AAPL", Action: domain.SignalActionSell, GeneratedAt: now.Add(time.Minute)}
	d2 := g.Evaluate(second, now.Add(time.Minute))
	if d2.Accept {
		t.Error("expected second signal to be rejected within cooldown")
	}

	later := now.Add(6 * time.Minute)
	third := &domain.Signal{Symbol: "AAPL", Action: domain.SignalActionSell, GeneratedAt: later}
	d3 := g.Evaluate(third, later)
	if !d3.Accept {
		t.Fatalf("expected signal accepted after cooldown elapses, got reason %q", d3.Reason)
	}
}

func TestGateResetClearsState(t *testing.T) {
	t.Parallel()
	g := NewGate(Config{SignalTTL: time.Minute, SymbolCooldown: time.Hour})
	now := time.Now()

	g.Evaluate(&domain.Signal{Symbol: "AAPL", Action: domain.SignalActionBuy, GeneratedAt: now}, now)
	g.Reset()

	d := g.Evaluate(&domain.Signal{Symbol: "AAPL", Action: domain.SignalActionBuy, GeneratedAt: now}, now)
	if !d.Accept {
		t.Error("expected signal accepted after Reset clears cooldown state")
	}
}
