package order

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/broker"
	"github.com/lumenquant/tradingcore/internal/domain"
	"github.com/lumenquant/tradingcore/internal/outbox"
	"github.com/lumenquant/tradingcore/internal/risk"
)

// RiskGate is the subset of risk.Engine the order service depends on,
// narrowed to an interface so tests can substitute a stub.
type RiskGate interface {
	Evaluate(req risk.Request, portfolio risk.PortfolioView, now time.Time) risk.Approval
	RecordOutcome(success bool) risk.KillSwitchState
}

// Portfolio supplies the account-state snapshot the risk gate needs,
// implemented by the ledger package in the full wiring.
type Portfolio interface {
	Equity() decimal.Decimal
	PositionValue(symbol string) decimal.Decimal
	DailyPnL() decimal.Decimal
}

// PlaceRequest is the caller-facing order placement request.
type PlaceRequest struct {
	IdempotencyKey string
	Symbol         string
	Side           domain.Side
	Type           domain.OrderType
	TimeInForce    domain.TimeInForce
	LimitPrice     decimal.Decimal
	Quantity       decimal.Decimal
	StrategyID     string
}

// Service implements the order use cases: Place, Cancel, Modify.
type Service struct {
	store     *Store
	outboxStr *outbox.Store
	riskGate  RiskGate
	brokerAdp broker.Adapter
	portfolio Portfolio
}

// NewService wires the order use cases over their dependencies.
func NewService(store *Store, outboxStr *outbox.Store, riskGate RiskGate, brokerAdp broker.Adapter, portfolio Portfolio) *Service {
	return &Service{
		store:     store,
		outboxStr: outboxStr,
		riskGate:  riskGate,
		brokerAdp: brokerAdp,
		portfolio: portfolio,
	}
}

// Place validates, risk-checks, persists, and submits a new order. A
// repeated call with the same IdempotencyKey returns the original order
// instead of submitting a duplicate.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*domain.Order, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = domain.IdempotencyKey("order")
	}

	existing, err := s.store.FindByIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info().Str("idempotency_key", req.IdempotencyKey).Str("order_id", existing.ID).Msg("♻️ order placement deduplicated")
		return existing, nil
	}

	openCount, err := s.store.OpenOrderCount(req.Symbol)
	if err != nil {
		return nil, err
	}

	riskReq := risk.Request{
		StrategyID: req.StrategyID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Price:      req.LimitPrice,
		Quantity:   req.Quantity,
	}
	portfolioView := risk.PortfolioView{
		Equity:         s.portfolio.Equity(),
		OpenOrderCount: openCount,
		PositionValue:  map[string]decimal.Decimal{req.Symbol: s.portfolio.PositionValue(req.Symbol)},
		DailyPnL:       s.portfolio.DailyPnL(),
	}

	now := time.Now()
	o := &domain.Order{
		ID:             domain.NewID(),
		IdempotencyKey: req.IdempotencyKey,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Type:           req.Type,
		TimeInForce:    req.TimeInForce,
		LimitPrice:     req.LimitPrice,
		Quantity:       req.Quantity,
		State:          domain.OrderStateNew,
		StrategyID:     req.StrategyID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	approval := s.riskGate.Evaluate(riskReq, portfolioView, now)
	if !approval.Approved {
		if err := s.transition(o, domain.OrderStateRejected); err != nil {
			return nil, err
		}
		o.RejectReason = approval.CheckFailed

		tx := s.store.DB().Begin()
		if err := s.store.Create(tx, o); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.outboxStr.Append(tx, o.ID, "OrderRejected", o); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, fmt.Errorf("commit order rejection: %w", err)
		}

		log.Warn().Str("order_id", o.ID).Str("check_failed", approval.CheckFailed).Str("reason", approval.RejectReason).Msg("🚫 order rejected by risk gate")
		return o, nil
	}

	if err := s.transition(o, domain.OrderStatePendingSubmit); err != nil {
		return nil, err
	}

	tx := s.store.DB().Begin()
	if err := s.store.Create(tx, o); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := s.outboxStr.Append(tx, o.ID, "OrderPlaced", o); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit order placement: %w", err)
	}

	brokerOrderID, err := s.brokerAdp.Submit(ctx, o)
	if err != nil {
		s.riskGate.RecordOutcome(false)
		_ = s.transition(o, domain.OrderStateRejected)
		o.RejectReason = err.Error()
		if uerr := s.persistTransition(o, "OrderRejected"); uerr != nil {
			log.Error().Err(uerr).Str("order_id", o.ID).Msg("❌ failed to persist order rejection")
		}
		return o, fmt.Errorf("submit order to broker: %w", err)
	}

	s.riskGate.RecordOutcome(true)
	o.BrokerOrderID = brokerOrderID
	if err := s.transition(o, domain.OrderStateOpen); err != nil {
		return nil, err
	}
	if err := s.persistTransition(o, "OrderOpened"); err != nil {
		return nil, err
	}

	log.Info().Str("order_id", o.ID).Str("symbol", o.Symbol).Str("side", string(o.Side)).Msg("📤 order placed")
	return o, nil
}

// Cancel requests cancellation of a resting order.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	o, err := s.store.Get(orderID)
	if err != nil {
		return err
	}
	if err := s.transition(o, domain.OrderStateCancelPending); err != nil {
		return err
	}
	if err := s.persistTransition(o, "OrderCancelPending"); err != nil {
		return err
	}

	if err := s.brokerAdp.Cancel(ctx, o.BrokerOrderID); err != nil {
		_ = s.transition(o, domain.OrderStateOpen)
		_ = s.persistTransition(o, "OrderCancelRejected")
		return fmt.Errorf("cancel order at broker: %w", err)
	}

	if err := s.transition(o, domain.OrderStateCancelled); err != nil {
		return err
	}
	return s.persistTransition(o, "OrderCancelled")
}

// ModifyRequest carries the fields a Modify call is allowed to change.
// Only resting (OPEN) orders can be modified; this is implemented as a
// cancel-then-replace, grounded on the common Modify = Cancel+Place
// convention most brokerage REST APIs use when true in-place amend isn't
// supported.
type ModifyRequest struct {
	NewLimitPrice decimal.Decimal
	NewQuantity   decimal.Decimal
}

// Modify cancels the existing order and places a replacement with the new
// parameters, reusing the original order's strategy and symbol.
func (s *Service) Modify(ctx context.Context, orderID string, mod ModifyRequest) (*domain.Order, error) {
	original, err := s.store.Get(orderID)
	if err != nil {
		return nil, err
	}
	if original.State != domain.OrderStateOpen {
		return nil, fmt.Errorf("order %s cannot be modified in state %s", orderID, original.State)
	}

	if err := s.Cancel(ctx, orderID); err != nil {
		return nil, fmt.Errorf("cancel original order for modify: %w", err)
	}

	return s.Place(ctx, PlaceRequest{
		Symbol:      original.Symbol,
		Side:        original.Side,
		Type:        original.Type,
		TimeInForce: original.TimeInForce,
		LimitPrice:  mod.NewLimitPrice,
		Quantity:    mod.NewQuantity,
		StrategyID:  original.StrategyID,
	})
}

func (s *Service) transition(o *domain.Order, next domain.OrderState) error {
	if err := ValidateTransition(o.State, next); err != nil {
		return err
	}
	o.State = next
	o.UpdatedAt = time.Now()
	return nil
}

func (s *Service) persistTransition(o *domain.Order, eventType string) error {
	tx := s.store.DB().Begin()
	if err := s.store.UpdateState(tx, o); err != nil {
		tx.Rollback()
		return err
	}
	if err := s.outboxStr.Append(tx, o.ID, eventType, o); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}
