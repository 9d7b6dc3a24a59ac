package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the execution style requested for an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce controls how long a resting order remains eligible to fill.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
)

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	OrderStateNew             OrderState = "NEW"
	OrderStatePendingSubmit   OrderState = "PENDING_SUBMIT"
	OrderStateOpen            OrderState = "OPEN"
	OrderStatePartiallyFilled OrderState = "PARTIALLY_FILLED"
	OrderStateFilled          OrderState = "FILLED"
	OrderStateCancelPending   OrderState = "PENDING_CANCEL"
	OrderStateCancelled       OrderState = "CANCELLED"
	OrderStateRejected        OrderState = "REJECTED"
	OrderStateExpired         OrderState = "EXPIRED"
)

// IsTerminal reports whether an order can no longer transition.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected, OrderStateExpired:
		return true
	default:
		return false
	}
}

// Order is a single order in the system of record.
type Order struct {
	ID             string
	IdempotencyKey string
	Symbol         string
	Side           Side
	Type           OrderType
	TimeInForce    TimeInForce
	LimitPrice     decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	AvgFillPrice   decimal.Decimal
	State          OrderState
	StrategyID     string
	BrokerOrderID  string
	RejectReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Fill is a single execution against an order.
type Fill struct {
	ID        string
	OrderID   string
	Symbol    string
	Side      Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Fee       decimal.Decimal
	Venue     string
	FilledAt  time.Time
	Sequence  int64
}

// Position is the net holding of a symbol after applying fills.
type Position struct {
	Symbol        string
	Quantity      decimal.Decimal // signed: positive long, negative short
	AvgEntryPrice decimal.Decimal
	RealizedPnL   decimal.Decimal
	UpdatedAt     time.Time
}

// Tick is a single market data update for a symbol.
type Tick struct {
	Symbol    string
	Price     decimal.Decimal
	Size      decimal.Decimal
	Timestamp time.Time
}

// BarInterval is a supported aggregation window.
type BarInterval string

const (
	BarInterval1Min  BarInterval = "1m"
	BarInterval5Min  BarInterval = "5m"
	BarInterval15Min BarInterval = "15m"
	BarInterval1Hour BarInterval = "1h"
	BarInterval1Day  BarInterval = "1d"
)

// Bar is an OHLCV candle for a symbol over an interval.
type Bar struct {
	Symbol    string
	Interval  BarInterval
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	OpenTime  time.Time
	CloseTime time.Time
	Sealed    bool
}

// MarketSession classifies the current trading session for a symbol.
type MarketSession string

const (
	SessionRegular            MarketSession = "REGULAR"
	SessionPreMarket          MarketSession = "PRE_MARKET"
	SessionAfterHours         MarketSession = "AFTER_HOURS"
	SessionAfterHoursClosing  MarketSession = "AFTER_HOURS_CLOSING"
	SessionClosed             MarketSession = "CLOSED"
)

// SignalAction is the directive a strategy emits from a tick or bar.
type SignalAction string

const (
	SignalActionBuy  SignalAction = "BUY"
	SignalActionSell SignalAction = "SELL"
	SignalActionFlat SignalAction = "FLAT"
	SignalActionHold SignalAction = "HOLD"
)

// Signal is a strategy's trading decision for a symbol at a point in time.
type Signal struct {
	StrategyID string
	Symbol     string
	Action     SignalAction
	Confidence decimal.Decimal
	Reason     string
	GeneratedAt time.Time
}
