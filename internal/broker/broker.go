// Package broker defines the adapter boundary between the trading core and
// an external execution venue, along with the token lifecycle and
// retry/backoff policy every adapter variant shares.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// Adapter is the venue-facing boundary. Every method must be safe for
// concurrent use.
type Adapter interface {
	// Connect establishes the session and performs the initial token fetch.
	Connect(ctx context.Context) error

	// Submit sends a new order to the venue and returns the venue-assigned
	// order ID on acceptance.
	Submit(ctx context.Context, order *domain.Order) (brokerOrderID string, err error)

	// Cancel requests cancellation of a resting order.
	Cancel(ctx context.Context, brokerOrderID string) error

	// Ticks returns a channel of market data ticks for the given symbols.
	// The channel is closed when the adapter is stopped.
	Ticks(ctx context.Context, symbols []string) (<-chan domain.Tick, error)

	// Fills returns a channel of fill notifications for submitted orders.
	Fills(ctx context.Context) (<-chan domain.Fill, error)

	// Close tears down the adapter's connections.
	Close() error
}

// RetryPolicy is the shared backoff schedule for venue calls: 1s initial
// delay, doubling each attempt, capped at 10s, stopping after MaxAttempts.
type RetryPolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultRetryPolicy is the default retry/backoff schedule for venue calls:
// 1s initial delay, doubling each attempt, capped at 10s, 3 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		MaxAttempts:  3,
	}
}

// TokenRefreshRetryPolicy governs the token lifecycle's background refresh.
func TokenRefreshRetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 5
	return p
}

// NextDelay returns the delay before the given 1-indexed attempt.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Token represents a venue access token with an expiry the adapter must
// refresh ahead of.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NeedsRefresh reports whether the token should be refreshed given the
// configured lead time.
func (t Token) NeedsRefresh(now time.Time, lead time.Duration) bool {
	if t.Value == "" {
		return true
	}
	return now.Add(lead).After(t.ExpiresAt)
}

// SlippageModel applies simulated, bps-based slippage to a paper fill price.
type SlippageModel struct {
	Bps int64
}

// Apply nudges price away from the requester's favor by the configured bps.
func (m SlippageModel) Apply(price decimal.Decimal, side domain.Side) decimal.Decimal {
	if m.Bps == 0 {
		return price
	}
	factor := decimal.NewFromInt(m.Bps).Div(decimal.NewFromInt(10000))
	if side == domain.SideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(factor))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(factor))
}
