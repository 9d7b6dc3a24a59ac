package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

func TestKillSwitchEscalatesAndHalts(t *testing.T) {
	t.Parallel()
	ks := NewKillSwitch(4) // warningThreshold = 4/2 = 2

	if ks.State() != KillSwitchNormal {
		t.Fatal("expected NORMAL initial state")
	}

	ks.RecordFailure("test failure 1")
	if ks.State() != KillSwitchNormal {
		t.Fatalf("expected NORMAL still after 1 failure (warning threshold 2), got %s", ks.State())
	}

	ks.RecordFailure("test failure 2")
	if ks.State() != KillSwitchWarning {
		t.Fatalf("expected WARNING after 2 failures, got %s", ks.State())
	}

	ks.RecordFailure("test failure 3")
	ks.RecordFailure("test failure 4")
	if ks.State() != KillSwitchHalted {
		t.Fatalf("expected HALTED after 4 consecutive failures, got %s", ks.State())
	}

	// Success alone must not un-halt.
	ks.RecordSuccess()
	if ks.State() != KillSwitchHalted {
		t.Fatal("RecordSuccess should not clear a HALTED switch")
	}

	ks.Reset()
	if ks.State() != KillSwitchNormal {
		t.Fatal("expected NORMAL after explicit Reset")
	}
}

func TestRuleSetResolveOverrides(t *testing.T) {
	t.Parallel()
	global := RiskRule{MaxOpenOrders: 20, MaxOrdersPerMinute: 10, ShortingAllowed: false}
	rs := NewRuleSet(global)

	rs.AddOverride(RiskRule{Scope: ScopeSymbol, Symbol: "TSLA", MaxOpenOrders: 5})

	resolved := rs.Resolve("strat1", "TSLA")
	if resolved.MaxOpenOrders != 5 {
		t.Errorf("MaxOpenOrders = %d, want 5 (symbol override)", resolved.MaxOpenOrders)
	}
	if resolved.MaxOrdersPerMinute != 10 {
		t.Errorf("MaxOrdersPerMinute = %d, want 10 (inherited from global)", resolved.MaxOrdersPerMinute)
	}

	other := rs.Resolve("strat1", "AAPL")
	if other.MaxOpenOrders != 20 {
		t.Errorf("MaxOpenOrders for unrelated symbol = %d, want 20 (global)", other.MaxOpenOrders)
	}
}

func TestOrderFrequencyTrackerPrunesOldEntries(t *testing.T) {
	t.Parallel()
	tr := NewOrderFrequencyTracker()
	now := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	tr.Record("k", now.Add(-2*time.Minute))
	tr.Record("k", now.Add(-30*time.Second))
	tr.Record("k", now)

	count := tr.CountInLastMinute("k", now)
	if count != 2 {
		t.Errorf("CountInLastMinute = %d, want 2", count)
	}
}

func TestEngineRejectsWhenHalted(t *testing.T) {
	t.Parallel()
	rules := NewRuleSet(RiskRule{MaxOpenOrders: 10})
	ks := NewKillSwitch(1)
	ks.RecordFailure("forced halt")
	eng := NewEngine(rules, ks, nil)

	req := Request{StrategyID: "s1", Symbol: "AAPL", Side: domain.SideBuy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	approval := eng.Evaluate(req, PortfolioView{PositionValue: map[string]decimal.Decimal{}}, time.Now())

	if approval.Approved {
		t.Fatal("expected rejection while kill switch halted")
	}
	if approval.CheckFailed != CheckKillSwitch {
		t.Errorf("CheckFailed = %s, want %s", approval.CheckFailed, CheckKillSwitch)
	}
}

func TestEngineRejectsMaxOpenOrders(t *testing.T) {
	t.Parallel()
	rules := NewRuleSet(RiskRule{MaxOpenOrders: 2})
	eng := NewEngine(rules, NewKillSwitch(5), nil)

	req := Request{StrategyID: "s1", Symbol: "AAPL", Side: domain.SideBuy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	approval := eng.Evaluate(req, PortfolioView{OpenOrderCount: 2, PositionValue: map[string]decimal.Decimal{}}, time.Now())

	if approval.Approved {
		t.Fatal("expected rejection at max open orders")
	}
	if approval.CheckFailed != CheckMaxOpenOrders {
		t.Errorf("CheckFailed = %s, want %s", approval.CheckFailed, CheckMaxOpenOrders)
	}
}

func TestEngineRejectsConsecutiveFailures(t *testing.T) {
	t.Parallel()
	rules := NewRuleSet(RiskRule{MaxOpenOrders: 10})
	ks := NewKillSwitch(10) // high threshold so three failures leave the switch NORMAL (warning starts at 5)
	ks.RecordFailure("f1")
	ks.RecordFailure("f2")
	ks.RecordFailure("f3")
	eng := NewEngine(rules, ks, nil)
	eng.killSwitch.maxConsecutiveFailures = 3 // lower the engine's own check threshold post-construction

	req := Request{StrategyID: "s1", Symbol: "AAPL", Side: domain.SideBuy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	approval := eng.Evaluate(req, PortfolioView{PositionValue: map[string]decimal.Decimal{}}, time.Now())

	if approval.Approved {
		t.Fatal("expected rejection at consecutive failure limit")
	}
	if approval.CheckFailed != CheckConsecutiveFailures {
		t.Errorf("CheckFailed = %s, want %s", approval.CheckFailed, CheckConsecutiveFailures)
	}
}

func TestEngineRejectsMarketClosed(t *testing.T) {
	t.Parallel()
	rules := NewRuleSet(RiskRule{MaxOpenOrders: 10})
	eng := NewEngine(rules, NewKillSwitch(5), alwaysClosed{})

	req := Request{StrategyID: "s1", Symbol: "AAPL", Side: domain.SideBuy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	approval := eng.Evaluate(req, PortfolioView{PositionValue: map[string]decimal.Decimal{}}, time.Now())

	if approval.Approved {
		t.Fatal("expected rejection while market closed")
	}
	if approval.CheckFailed != CheckMarketClosed {
		t.Errorf("CheckFailed = %s, want %s", approval.CheckFailed, CheckMarketClosed)
	}
}

type alwaysClosed struct{}

func (alwaysClosed) IsOpen(time.Time) bool { return false }

func TestEngineApprovesWithinLimits(t *testing.T) {
	t.Parallel()
	rules := NewRuleSet(RiskRule{MaxOpenOrders: 10, MaxOrdersPerMinute: 5, ShortingAllowed: true})
	eng := NewEngine(rules, NewKillSwitch(5), nil)

	req := Request{StrategyID: "s1", Symbol: "AAPL", Side: domain.SideBuy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	approval := eng.Evaluate(req, PortfolioView{PositionValue: map[string]decimal.Decimal{}}, time.Now())

	if !approval.Approved {
		t.Fatalf("expected approval within all limits, got rejection: %s", approval.RejectReason)
	}
}
