// Package order implements the order use cases: placement, cancellation,
// and modification. Placement and modification run the risk gate
// (cancellation does not); each submits to a broker adapter and persists
// the resulting state transition together with an outbox event in one
// transaction.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// Record is the gorm-persisted representation of an order.
type Record struct {
	ID             string `gorm:"primaryKey"`
	IdempotencyKey string `gorm:"uniqueIndex"`
	Symbol         string `gorm:"index"`
	Side           string
	Type           string
	TimeInForce    string
	LimitPrice     decimal.Decimal `gorm:"type:decimal(18,4)"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4)"`
	FilledQuantity decimal.Decimal `gorm:"type:decimal(18,4)"`
	AvgFillPrice   decimal.Decimal `gorm:"type:decimal(18,4)"`
	State          string          `gorm:"index"`
	StrategyID     string          `gorm:"index"`
	BrokerOrderID  string
	RejectReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName pins the table name.
func (Record) TableName() string {
	return "orders"
}

func toRecord(o *domain.Order) Record {
	return Record{
		ID:             o.ID,
		IdempotencyKey: o.IdempotencyKey,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Type:           string(o.Type),
		TimeInForce:    string(o.TimeInForce),
		LimitPrice:     o.LimitPrice,
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		AvgFillPrice:   o.AvgFillPrice,
		State:          string(o.State),
		StrategyID:     o.StrategyID,
		BrokerOrderID:  o.BrokerOrderID,
		RejectReason:   o.RejectReason,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func fromRecord(r Record) *domain.Order {
	return &domain.Order{
		ID:             r.ID,
		IdempotencyKey: r.IdempotencyKey,
		Symbol:         r.Symbol,
		Side:           domain.Side(r.Side),
		Type:           domain.OrderType(r.Type),
		TimeInForce:    domain.TimeInForce(r.TimeInForce),
		LimitPrice:     r.LimitPrice,
		Quantity:       r.Quantity,
		FilledQuantity: r.FilledQuantity,
		AvgFillPrice:   r.AvgFillPrice,
		State:          domain.OrderState(r.State),
		StrategyID:     r.StrategyID,
		BrokerOrderID:  r.BrokerOrderID,
		RejectReason:   r.RejectReason,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
