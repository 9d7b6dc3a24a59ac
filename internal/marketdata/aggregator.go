package marketdata

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// SealedBarHandler is invoked whenever a bucket's interval elapses and its
// bar transitions to sealed.
type SealedBarHandler func(bar domain.Bar)

// Aggregator folds ticks into per-symbol, per-interval OHLCV bars and seals
// a bar once a newer tick arrives for a later bucket.
type Aggregator struct {
	mu       sync.Mutex
	interval domain.BarInterval
	open     map[string]*domain.Bar // symbol -> in-progress bar
	onSealed SealedBarHandler
}

// NewAggregator builds a folding aggregator for the given bar interval.
func NewAggregator(interval domain.BarInterval, onSealed SealedBarHandler) *Aggregator {
	return &Aggregator{
		interval: interval,
		open:     make(map[string]*domain.Bar),
		onSealed: onSealed,
	}
}

// Fold applies a tick to the aggregator's in-progress bar for its symbol,
// sealing and emitting the previous bucket's bar if the tick belongs to a
// new bucket.
func (a *Aggregator) Fold(tick domain.Tick) {
	bucket := bucketStart(tick.Timestamp, a.interval)

	a.mu.Lock()
	bar, exists := a.open[tick.Symbol]
	var toSeal *domain.Bar

	if exists && bar.OpenTime.Before(bucket) {
		sealed := *bar
		sealed.Sealed = true
		sealed.CloseTime = sealed.OpenTime.Add(intervalDuration(a.interval))
		toSeal = &sealed
		delete(a.open, tick.Symbol)
		exists = false
	}

	if !exists {
		bar = &domain.Bar{
			Symbol:   tick.Symbol,
			Interval: a.interval,
			Open:     tick.Price,
			High:     tick.Price,
			Low:      tick.Price,
			Close:    tick.Price,
			Volume:   tick.Size,
			OpenTime: bucket,
		}
		a.open[tick.Symbol] = bar
	} else {
		if tick.Price.GreaterThan(bar.High) {
			bar.High = tick.Price
		}
		if tick.Price.LessThan(bar.Low) {
			bar.Low = tick.Price
		}
		bar.Close = tick.Price
		bar.Volume = bar.Volume.Add(tick.Size)
	}
	a.mu.Unlock()

	if toSeal != nil {
		log.Debug().
			Str("symbol", toSeal.Symbol).
			Str("interval", string(a.interval)).
			Str("close", toSeal.Close.String()).
			Msg("🔒 bar sealed")
		if a.onSealed != nil {
			a.onSealed(*toSeal)
		}
	}
}

// Current returns the in-progress (unsealed) bar for a symbol, if any.
func (a *Aggregator) Current(symbol string) (domain.Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bar, ok := a.open[symbol]
	if !ok {
		return domain.Bar{}, false
	}
	return *bar, true
}

// SealStale forces a seal of every in-progress bar whose bucket has fully
// elapsed as of now, for symbols that have gone quiet (no tick arrived to
// trigger the natural seal-on-next-tick path above).
func (a *Aggregator) SealStale(now time.Time) {
	d := intervalDuration(a.interval)

	a.mu.Lock()
	var toSeal []domain.Bar
	for symbol, bar := range a.open {
		if now.Sub(bar.OpenTime) >= d {
			sealed := *bar
			sealed.Sealed = true
			sealed.CloseTime = sealed.OpenTime.Add(d)
			toSeal = append(toSeal, sealed)
			delete(a.open, symbol)
		}
	}
	a.mu.Unlock()

	for _, bar := range toSeal {
		if a.onSealed != nil {
			a.onSealed(bar)
		}
	}
}
