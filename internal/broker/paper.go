package broker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// PaperAdapter simulates venue behavior with configurable slippage and a
// simulated network delay.
type PaperAdapter struct {
	mu        sync.Mutex
	last      map[string]decimal.Decimal
	slippage  SlippageModel
	ackDelay  time.Duration
	tickCh    chan domain.Tick
	fillCh    chan domain.Fill
	seq       int64
	feed      Adapter // underlying tick source, typically a StubAdapter
}

// NewPaperAdapter wraps a market data feed adapter with simulated order
// execution so the risk and order-use-case layers can be exercised end to
// end without a live venue.
func NewPaperAdapter(feed Adapter, slippageBps int64) *PaperAdapter {
	return &PaperAdapter{
		last:     make(map[string]decimal.Decimal),
		slippage: SlippageModel{Bps: slippageBps},
		ackDelay: 50 * time.Millisecond,
		tickCh:   make(chan domain.Tick, 256),
		fillCh:   make(chan domain.Fill, 256),
		feed:     feed,
	}
}

// Connect connects the underlying feed.
func (p *PaperAdapter) Connect(ctx context.Context) error {
	log.Info().Msg("🔌 paper broker connected")
	return p.feed.Connect(ctx)
}

// Submit simulates an acknowledgement delay then fills the order at the
// last observed tick price, adjusted for simulated slippage.
func (p *PaperAdapter) Submit(ctx context.Context, order *domain.Order) (string, error) {
	select {
	case <-time.After(p.ackDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	p.mu.Lock()
	price, ok := p.last[order.Symbol]
	if !ok {
		price = order.LimitPrice
	}
	if order.Type == domain.OrderTypeLimit && !order.LimitPrice.IsZero() {
		price = order.LimitPrice
	}
	fillPrice := p.slippage.Apply(price, order.Side)
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	brokerID := domain.NewID()
	fill := domain.Fill{
		ID:       domain.NewID(),
		OrderID:  order.ID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Price:    fillPrice,
		Quantity: order.Quantity,
		Fee:      decimal.Zero,
		Venue:    "paper",
		FilledAt: time.Now(),
		Sequence: seq,
	}

	log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("fill_price", fillPrice.StringFixed(4)).
		Msg("📝 paper fill simulated")

	select {
	case p.fillCh <- fill:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return brokerID, nil
}

// Cancel is a no-op: paper fills happen synchronously on Submit.
func (p *PaperAdapter) Cancel(ctx context.Context, brokerOrderID string) error {
	return nil
}

// Ticks relays the underlying feed's ticks while also caching last price
// per symbol for fill simulation.
func (p *PaperAdapter) Ticks(ctx context.Context, symbols []string) (<-chan domain.Tick, error) {
	upstream, err := p.feed.Ticks(ctx, symbols)
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-upstream:
				if !ok {
					close(p.tickCh)
					return
				}
				p.mu.Lock()
				p.last[tick.Symbol] = tick.Price
				p.mu.Unlock()
				select {
				case p.tickCh <- tick:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return p.tickCh, nil
}

// Fills returns the channel fills are pushed to by Submit.
func (p *PaperAdapter) Fills(ctx context.Context) (<-chan domain.Fill, error) {
	return p.fillCh, nil
}

// Close tears down the underlying feed.
func (p *PaperAdapter) Close() error {
	log.Info().Msg("🔌 paper broker closed")
	return p.feed.Close()
}
