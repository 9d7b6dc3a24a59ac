package barstore

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// cacheDepth is the number of most-recent sealed bars kept in memory per
// symbol+interval.
const cacheDepth = 200

// Store is the durable bar repository, backed by gorm, fronted by a
// bounded in-memory ring per symbol+interval that serves recent reads
// without a database query whenever it already holds enough bars.
type Store struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache map[string][]domain.Bar // key: symbol|interval
}

// NewStore opens (and auto-migrates) the bar table on the given gorm
// connection.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&BarRecord{}); err != nil {
		return nil, fmt.Errorf("migrate bars table: %w", err)
	}
	return &Store{
		db:    db,
		cache: make(map[string][]domain.Bar),
	}, nil
}

func cacheKey(symbol string, interval domain.BarInterval) string {
	return symbol + "|" + string(interval)
}

// Append persists a newly-sealed bar and pushes it into the in-memory
// cache, evicting the oldest entry once the cache exceeds cacheDepth.
func (s *Store) Append(bar domain.Bar) error {
	record := BarRecord{
		Symbol:    bar.Symbol,
		Interval:  string(bar.Interval),
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    bar.Volume,
		OpenTime:  bar.OpenTime,
		CloseTime: bar.CloseTime,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("persist bar: %w", err)
	}

	key := cacheKey(bar.Symbol, bar.Interval)
	s.mu.Lock()
	bars := append(s.cache[key], bar)
	if len(bars) > cacheDepth {
		bars = bars[len(bars)-cacheDepth:]
	}
	s.cache[key] = bars
	s.mu.Unlock()

	return nil
}

// Recent returns up to n most-recent sealed bars for a symbol/interval,
// oldest first. It serves entirely from the in-memory cache when the
// cache already holds n bars; otherwise it falls back to the database.
func (s *Store) Recent(symbol string, interval domain.BarInterval, n int) ([]domain.Bar, error) {
	key := cacheKey(symbol, interval)

	s.mu.RLock()
	cached := s.cache[key]
	s.mu.RUnlock()

	if len(cached) >= n || len(cached) >= cacheDepth {
		start := 0
		if len(cached) > n {
			start = len(cached) - n
		}
		out := make([]domain.Bar, len(cached[start:]))
		copy(out, cached[start:])
		return out, nil
	}

	var records []BarRecord
	err := s.db.Where("symbol = ? AND interval = ?", symbol, string(interval)).
		Order("open_time desc").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}

	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		// records come back newest-first; reverse into oldest-first
		bars[len(records)-1-i] = domain.Bar{
			Symbol:    r.Symbol,
			Interval:  domain.BarInterval(r.Interval),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
			OpenTime:  r.OpenTime,
			CloseTime: r.CloseTime,
			Sealed:    true,
		}
	}

	s.mu.Lock()
	s.cache[key] = bars
	s.mu.Unlock()

	log.Debug().Str("symbol", symbol).Str("interval", string(interval)).Int("count", len(bars)).Msg("📊 bars loaded from database")
	return bars, nil
}
