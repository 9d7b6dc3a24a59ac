package fill

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lumenquant/tradingcore/internal/domain"
	"github.com/lumenquant/tradingcore/internal/ledger"
	"github.com/lumenquant/tradingcore/internal/order"
	"github.com/lumenquant/tradingcore/internal/outbox"
	"github.com/lumenquant/tradingcore/internal/risk"
)

func TestValidateRejectsOutOfRangePrice(t *testing.T) {
	t.Parallel()
	f := domain.Fill{ID: "f1", OrderID: "o1", Symbol: "AAPL", Price: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(10), FilledAt: time.Now()}
	if err := Validate(f, time.Now()); err == nil {
		t.Error("expected error for price below minimum")
	}
}

func TestValidateRejectsFutureTimestamp(t *testing.T) {
	t.Parallel()
	now := time.Now()
	f := domain.Fill{ID: "f1", OrderID: "o1", Symbol: "AAPL", Price: decimal.NewFromInt(150), Quantity: decimal.NewFromInt(10), FilledAt: now.Add(time.Hour)}
	if err := Validate(f, now); err == nil {
		t.Error("expected error for a future-dated fill")
	}
}

func TestValidateAcceptsInRangeFill(t *testing.T) {
	t.Parallel()
	now := time.Now()
	f := domain.Fill{ID: "f1", OrderID: "o1", Symbol: "AAPL", Price: decimal.NewFromInt(150), Quantity: decimal.NewFromInt(10), FilledAt: now}
	if err := Validate(f, now); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDuplicateFilterRejectsRepeat(t *testing.T) {
	t.Parallel()
	d := NewDuplicateFilter()
	now := time.Now()

	if !d.PutIfAbsent("f1", now) {
		t.Error("first claim of f1 should succeed")
	}
	if d.PutIfAbsent("f1", now) {
		t.Error("second claim of f1 within TTL should be rejected as duplicate")
	}
}

func TestDuplicateFilterAllowsAfterTTL(t *testing.T) {
	t.Parallel()
	d := NewDuplicateFilter()
	start := time.Now()

	if !d.PutIfAbsent("f1", start) {
		t.Error("first claim of f1 should succeed")
	}
	later := start.Add(2 * time.Hour)
	if !d.PutIfAbsent("f1", later) {
		t.Error("claim after TTL expiry should succeed again")
	}
}

func TestApplyToPositionOpeningLong(t *testing.T) {
	t.Parallel()
	flat := domain.Position{Symbol: "AAPL"}
	pos, realized, err := applyToPosition(flat, domain.SideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100), false)
	if err != nil {
		t.Fatalf("applyToPosition: %v", err)
	}
	if !pos.Quantity.Equal(decimal.NewFromInt(10)) || !pos.AvgEntryPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("pos = %+v, want qty=10 avg=100", pos)
	}
	if !realized.IsZero() {
		t.Errorf("realized = %s, want 0", realized)
	}
}

func TestApplyToPositionClosingLongPartially(t *testing.T) {
	t.Parallel()
	long := domain.Position{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), AvgEntryPrice: decimal.NewFromInt(100)}
	pos, realized, err := applyToPosition(long, domain.SideSell, decimal.NewFromInt(4), decimal.NewFromInt(110), false)
	if err != nil {
		t.Fatalf("applyToPosition: %v", err)
	}
	if !pos.Quantity.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Quantity = %s, want 6", pos.Quantity)
	}
	if !realized.Equal(decimal.NewFromInt(40)) {
		t.Errorf("realized = %s, want 40", realized)
	}
}

func TestApplyToPositionFlipLongToShortRequiresShortingAllowed(t *testing.T) {
	t.Parallel()
	long := domain.Position{Symbol: "AAPL", Quantity: decimal.NewFromInt(5), AvgEntryPrice: decimal.NewFromInt(100)}
	_, _, err := applyToPosition(long, domain.SideSell, decimal.NewFromInt(10), decimal.NewFromInt(110), false)
	if err == nil {
		t.Fatal("expected shorting-not-allowed error when flip would go short")
	}

	pos, realized, err := applyToPosition(long, domain.SideSell, decimal.NewFromInt(10), decimal.NewFromInt(110), true)
	if err != nil {
		t.Fatalf("applyToPosition with shorting allowed: %v", err)
	}
	if !pos.Quantity.Equal(decimal.NewFromInt(-5)) {
		t.Errorf("Quantity = %s, want -5", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(decimal.NewFromInt(110)) {
		t.Errorf("AvgEntryPrice = %s, want 110 for the new short leg", pos.AvgEntryPrice)
	}
	if !realized.Equal(decimal.NewFromInt(50)) {
		t.Errorf("realized = %s, want 50", realized)
	}
}

func newTestProcessor(t *testing.T) (*Processor, *order.Store, *ledger.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	orderStore, err := order.NewStore(db)
	if err != nil {
		t.Fatalf("order.NewStore: %v", err)
	}
	ledgerStore, err := ledger.NewStore(db)
	if err != nil {
		t.Fatalf("ledger.NewStore: %v", err)
	}
	outboxStore, err := outbox.NewStore(db)
	if err != nil {
		t.Fatalf("outbox.NewStore: %v", err)
	}
	rules := risk.NewRuleSet(risk.RiskRule{ShortingAllowed: false, DailyLossLimit: decimal.Zero})
	killSwitch := risk.NewKillSwitch(4)
	proc := NewProcessor(orderStore, ledgerStore, outboxStore, rules, killSwitch)
	return proc, orderStore, ledgerStore
}

func TestProcessorApplyFillsOrderCompletely(t *testing.T) {
	t.Parallel()
	proc, orderStore, ledgerStore := newTestProcessor(t)

	now := time.Now()
	o := &domain.Order{
		ID: "o1", Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
		Quantity: decimal.NewFromInt(10), State: domain.OrderStateOpen, StrategyID: "s1",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := orderStore.Create(nil, o); err != nil {
		t.Fatalf("Create: %v", err)
	}

	f := domain.Fill{ID: "f1", OrderID: "o1", Symbol: "AAPL", Side: domain.SideBuy, Price: decimal.NewFromInt(150), Quantity: decimal.NewFromInt(10), FilledAt: now}
	if err := proc.Apply(f); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	updated, err := orderStore.Get("o1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.State != domain.OrderStateFilled {
		t.Errorf("State = %s, want FILLED", updated.State)
	}

	pos, err := ledgerStore.GetPosition("AAPL")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if !pos.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("position Quantity = %s, want 10", pos.Quantity)
	}
}

func TestProcessorApplyDropsDuplicateFill(t *testing.T) {
	t.Parallel()
	proc, orderStore, _ := newTestProcessor(t)

	now := time.Now()
	o := &domain.Order{
		ID: "o1", Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
		Quantity: decimal.NewFromInt(10), State: domain.OrderStateOpen, StrategyID: "s1",
		CreatedAt: now, UpdatedAt: now,
	}
	orderStore.Create(nil, o)

	f := domain.Fill{ID: "f1", OrderID: "o1", Symbol: "AAPL", Side: domain.SideBuy, Price: decimal.NewFromInt(150), Quantity: decimal.NewFromInt(5), FilledAt: now}
	if err := proc.Apply(f); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	if err := proc.Apply(f); err != nil {
		t.Fatalf("duplicate Apply should be swallowed, not erred: %v", err)
	}

	updated, _ := orderStore.Get("o1")
	if !updated.FilledQuantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("FilledQuantity = %s, want 5 (duplicate must not double-apply)", updated.FilledQuantity)
	}
}

func TestProcessorApplyTripsKillSwitchOnDailyLossBreach(t *testing.T) {
	t.Parallel()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	orderStore, err := order.NewStore(db)
	if err != nil {
		t.Fatalf("order.NewStore: %v", err)
	}
	ledgerStore, err := ledger.NewStore(db)
	if err != nil {
		t.Fatalf("ledger.NewStore: %v", err)
	}
	outboxStore, err := outbox.NewStore(db)
	if err != nil {
		t.Fatalf("outbox.NewStore: %v", err)
	}
	rules := risk.NewRuleSet(risk.RiskRule{ShortingAllowed: true, DailyLossLimit: decimal.NewFromInt(50)})
	killSwitch := risk.NewKillSwitch(10) // failure-count threshold well above what this test would trip
	proc := NewProcessor(orderStore, ledgerStore, outboxStore, rules, killSwitch)

	now := time.Now()
	ledgerStore.SavePosition(nil, domain.Position{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), AvgEntryPrice: decimal.NewFromInt(150), UpdatedAt: now})

	o := &domain.Order{
		ID: "o1", Symbol: "AAPL", Side: domain.SideSell, Type: domain.OrderTypeMarket,
		Quantity: decimal.NewFromInt(10), State: domain.OrderStateOpen, StrategyID: "s1",
		CreatedAt: now, UpdatedAt: now,
	}
	orderStore.Create(nil, o)

	// Selling 10 @ 90 against a 150 avg entry realizes a 600 loss, well past
	// the 50 daily loss limit.
	f := domain.Fill{ID: "f1", OrderID: "o1", Symbol: "AAPL", Side: domain.SideSell, Price: decimal.NewFromInt(90), Quantity: decimal.NewFromInt(10), FilledAt: now}
	if err := proc.Apply(f); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if killSwitch.State() != risk.KillSwitchHalted {
		t.Errorf("kill switch state = %s, want HALTED", killSwitch.State())
	}

	pending, err := outboxStore.Pending(10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	var sawTriggered, sawPositionUpdated, sawPnLUpdated bool
	for _, evt := range pending {
		switch evt.EventType {
		case "KillSwitchTriggered":
			sawTriggered = true
		case "PositionUpdated":
			sawPositionUpdated = true
		case "PnLUpdated":
			sawPnLUpdated = true
		}
	}
	if !sawTriggered {
		t.Error("expected a KillSwitchTriggered outbox event")
	}
	if !sawPositionUpdated {
		t.Error("expected a PositionUpdated outbox event")
	}
	if !sawPnLUpdated {
		t.Error("expected a PnLUpdated outbox event")
	}
}

func TestProcessorApplyRejectsOverfill(t *testing.T) {
	t.Parallel()
	proc, orderStore, _ := newTestProcessor(t)

	now := time.Now()
	o := &domain.Order{
		ID: "o1", Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
		Quantity: decimal.NewFromInt(10), State: domain.OrderStateOpen, StrategyID: "s1",
		CreatedAt: now, UpdatedAt: now,
	}
	orderStore.Create(nil, o)

	f := domain.Fill{ID: "f1", OrderID: "o1", Symbol: "AAPL", Side: domain.SideBuy, Price: decimal.NewFromInt(150), Quantity: decimal.NewFromInt(20), FilledAt: now}
	if err := proc.Apply(f); err == nil {
		t.Fatal("expected overfill to error")
	}
}
