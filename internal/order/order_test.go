package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lumenquant/tradingcore/internal/broker"
	"github.com/lumenquant/tradingcore/internal/domain"
	"github.com/lumenquant/tradingcore/internal/outbox"
	"github.com/lumenquant/tradingcore/internal/risk"
)

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	if err := ValidateTransition(domain.OrderStateNew, domain.OrderStatePendingSubmit); err != nil {
		t.Errorf("NEW -> PENDING_SUBMIT should be legal: %v", err)
	}
	if err := ValidateTransition(domain.OrderStateFilled, domain.OrderStateCancelled); err == nil {
		t.Error("expected error transitioning out of a terminal state")
	}
	if err := ValidateTransition(domain.OrderStateNew, domain.OrderStateFilled); err == nil {
		t.Error("expected error for an unregistered transition")
	}
}

type stubPortfolio struct{}

func (stubPortfolio) Equity() decimal.Decimal                { return decimal.NewFromInt(100000) }
func (stubPortfolio) PositionValue(symbol string) decimal.Decimal { return decimal.Zero }
func (stubPortfolio) DailyPnL() decimal.Decimal               { return decimal.Zero }

type alwaysApproveRisk struct{}

func (alwaysApproveRisk) Evaluate(req risk.Request, portfolio risk.PortfolioView, now time.Time) risk.Approval {
	return risk.Approval{Approved: true}
}
func (alwaysApproveRisk) RecordOutcome(success bool) risk.KillSwitchState {
	return risk.KillSwitchNormal
}

type alwaysRejectRisk struct{}

func (alwaysRejectRisk) Evaluate(req risk.Request, portfolio risk.PortfolioView, now time.Time) risk.Approval {
	return risk.Approval{Approved: false, CheckFailed: risk.CheckMaxOpenOrders, RejectReason: "too many open orders"}
}
func (alwaysRejectRisk) RecordOutcome(success bool) risk.KillSwitchState {
	return risk.KillSwitchNormal
}

func newTestService(t *testing.T, riskGate RiskGate) (*Service, broker.Adapter) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	orderStore, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	outboxStore, err := outbox.NewStore(db)
	if err != nil {
		t.Fatalf("outbox.NewStore: %v", err)
	}
	adapter := broker.NewStubAdapter(map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(150)})
	svc := NewService(orderStore, outboxStore, riskGate, adapter, stubPortfolio{})
	return svc, adapter
}

func TestServicePlaceSuccess(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	svc, adapter := newTestService(t, alwaysApproveRisk{})
	if err := adapter.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	o, err := svc.Place(ctx, PlaceRequest{
		Symbol:     "AAPL",
		Side:       domain.SideBuy,
		Type:       domain.OrderTypeMarket,
		Quantity:   decimal.NewFromInt(10),
		StrategyID: "s1",
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if o.State != domain.OrderStateOpen {
		t.Errorf("State = %s, want OPEN", o.State)
	}
	if o.BrokerOrderID == "" {
		t.Error("expected a broker order ID to be set")
	}

	pending, err := svc.outboxStr.Pending(10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) == 0 {
		t.Error("expected at least one outbox event emitted for order placement")
	}
}

func TestServicePlaceRejectedByRisk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t, alwaysRejectRisk{})

	o, err := svc.Place(ctx, PlaceRequest{
		Symbol:     "AAPL",
		Side:       domain.SideBuy,
		Type:       domain.OrderTypeMarket,
		Quantity:   decimal.NewFromInt(10),
		StrategyID: "s1",
	})
	if err != nil {
		t.Fatalf("Place should not return an error for a risk rejection, got: %v", err)
	}
	if o.State != domain.OrderStateRejected {
		t.Errorf("State = %s, want REJECTED", o.State)
	}
	if o.RejectReason != risk.CheckMaxOpenOrders {
		t.Errorf("RejectReason = %s, want %s", o.RejectReason, risk.CheckMaxOpenOrders)
	}

	pending, err := svc.outboxStr.Pending(10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	found := false
	for _, evt := range pending {
		if evt.AggregateID == o.ID && evt.EventType == "OrderRejected" {
			found = true
		}
	}
	if !found {
		t.Error("expected an OrderRejected outbox event for the rejected order")
	}
}

func TestServicePlaceIdempotent(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	svc, adapter := newTestService(t, alwaysApproveRisk{})
	adapter.Connect(ctx)

	req := PlaceRequest{
		IdempotencyKey: "fixed-key-1",
		Symbol:         "AAPL",
		Side:           domain.SideBuy,
		Type:           domain.OrderTypeMarket,
		Quantity:       decimal.NewFromInt(10),
		StrategyID:     "s1",
	}

	first, err := svc.Place(ctx, req)
	if err != nil {
		t.Fatalf("first Place: %v", err)
	}
	second, err := svc.Place(ctx, req)
	if err != nil {
		t.Fatalf("second Place: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected duplicate placement to return the same order, got %s and %s", first.ID, second.ID)
	}
}
