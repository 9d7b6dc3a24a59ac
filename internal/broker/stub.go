package broker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// StubAdapter generates synthetic ticks for a fixed symbol set and accepts
// orders unconditionally, filling them immediately at the last tick price.
// Used for local development and deterministic tests where no paper-mode
// slippage simulation is needed.
type StubAdapter struct {
	mu       sync.Mutex
	prices   map[string]decimal.Decimal
	tickCh   chan domain.Tick
	fillCh   chan domain.Fill
	closed   bool
	seq      int64
	rng      *rand.Rand
}

// NewStubAdapter builds a StubAdapter seeded with a starting price per
// symbol.
func NewStubAdapter(seed map[string]decimal.Decimal) *StubAdapter {
	prices := make(map[string]decimal.Decimal, len(seed))
	for k, v := range seed {
		prices[k] = v
	}
	return &StubAdapter{
		prices: prices,
		tickCh: make(chan domain.Tick, 256),
		fillCh: make(chan domain.Fill, 256),
		rng:    rand.New(rand.NewSource(1)),
	}
}

// Connect is a no-op for the stub adapter.
func (s *StubAdapter) Connect(ctx context.Context) error {
	log.Info().Msg("🔌 stub broker connected")
	return nil
}

// Submit accepts the order and emits an immediate fill at the last known
// price for the symbol.
func (s *StubAdapter) Submit(ctx context.Context, order *domain.Order) (string, error) {
	s.mu.Lock()
	price, ok := s.prices[order.Symbol]
	if !ok {
		price = decimal.NewFromInt(100)
		s.prices[order.Symbol] = price
	}
	if order.Type == domain.OrderTypeLimit {
		price = order.LimitPrice
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	brokerID := domain.NewID()

	fill := domain.Fill{
		ID:       domain.NewID(),
		OrderID:  order.ID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Price:    price,
		Quantity: order.Quantity,
		Fee:      decimal.Zero,
		Venue:    "stub",
		FilledAt: time.Now(),
		Sequence: seq,
	}

	select {
	case s.fillCh <- fill:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return brokerID, nil
}

// Cancel is a no-op: the stub adapter fills synchronously on Submit, so
// there is never a resting order to cancel.
func (s *StubAdapter) Cancel(ctx context.Context, brokerOrderID string) error {
	return nil
}

// Ticks starts a background generator producing a random walk for each
// requested symbol until the context is cancelled.
func (s *StubAdapter) Ticks(ctx context.Context, symbols []string) (<-chan domain.Tick, error) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sym := range symbols {
					s.mu.Lock()
					price, ok := s.prices[sym]
					if !ok {
						price = decimal.NewFromInt(100)
					}
					drift := decimal.NewFromFloat((s.rng.Float64() - 0.5) * 0.2)
					price = price.Add(drift)
					if price.IsNegative() {
						price = decimal.NewFromInt(1)
					}
					s.prices[sym] = price
					s.mu.Unlock()

					select {
					case s.tickCh <- domain.Tick{Symbol: sym, Price: price, Timestamp: time.Now()}:
					case <-ctx.Done():
						return
					default:
					}
				}
			}
		}
	}()
	return s.tickCh, nil
}

// Fills returns the channel fills are pushed to by Submit.
func (s *StubAdapter) Fills(ctx context.Context) (<-chan domain.Fill, error) {
	return s.fillCh, nil
}

// Close marks the adapter closed; channels are left for the garbage
// collector since consumers select on ctx.Done() as well.
func (s *StubAdapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	log.Info().Msg("🔌 stub broker closed")
	return nil
}
