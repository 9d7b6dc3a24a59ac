// Package marketdata maintains a per-symbol latest-tick cache and folds
// incoming ticks into OHLCV bars, sealing a bar once its interval elapses.
// The cache is a subscriber-channel broadcast over a sync.RWMutex-guarded
// per-symbol price map.
package marketdata

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// Cache holds the most recent tick per symbol and fans out updates to
// subscribers, mirroring BinanceFeed's broadcast().
type Cache struct {
	mu          sync.RWMutex
	latest      map[string]domain.Tick
	subscribers []chan domain.Tick
}

// NewCache builds an empty tick cache.
func NewCache() *Cache {
	return &Cache{
		latest: make(map[string]domain.Tick),
	}
}

// Subscribe returns a channel that receives every tick applied via Apply.
func (c *Cache) Subscribe() <-chan domain.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan domain.Tick, 256)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Apply records a new tick and broadcasts it to subscribers.
func (c *Cache) Apply(tick domain.Tick) {
	c.mu.Lock()
	c.latest[tick.Symbol] = tick
	subs := make([]chan domain.Tick, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- tick:
		default:
			log.Warn().Str("symbol", tick.Symbol).Msg("⚠️ tick subscriber channel full, dropping update")
		}
	}
}

// Latest returns the most recent tick for a symbol.
func (c *Cache) Latest(symbol string) (domain.Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.latest[symbol]
	return t, ok
}

// Symbols returns every symbol with at least one cached tick.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.latest))
	for sym := range c.latest {
		out = append(out, sym)
	}
	return out
}

// bucketStart truncates a timestamp down to the start of its interval
// bucket.
func bucketStart(ts time.Time, interval domain.BarInterval) time.Time {
	d := intervalDuration(interval)
	return ts.Truncate(d)
}

func intervalDuration(interval domain.BarInterval) time.Duration {
	switch interval {
	case domain.BarInterval1Min:
		return time.Minute
	case domain.BarInterval5Min:
		return 5 * time.Minute
	case domain.BarInterval15Min:
		return 15 * time.Minute
	case domain.BarInterval1Hour:
		return time.Hour
	case domain.BarInterval1Day:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}
