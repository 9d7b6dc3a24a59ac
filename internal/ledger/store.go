package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// Store is the gorm-backed position and P&L repository.
type Store struct {
	db *gorm.DB
}

// NewStore opens (and auto-migrates) the positions and pnl_entries tables.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&PositionRecord{}, &PnLEntry{}); err != nil {
		return nil, fmt.Errorf("migrate ledger tables: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying connection for transactional use from the fill
// processor.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// GetPosition returns the current position for a symbol, or a flat
// (zero-quantity) position if none exists yet.
func (s *Store) GetPosition(symbol string) (domain.Position, error) {
	var r PositionRecord
	err := s.db.Where("symbol = ?", symbol).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Position{Symbol: symbol, Quantity: decimal.Zero, AvgEntryPrice: decimal.Zero, RealizedPnL: decimal.Zero}, nil
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("query position: %w", err)
	}
	return domain.Position{
		Symbol:        r.Symbol,
		Quantity:      r.Quantity,
		AvgEntryPrice: r.AvgEntryPrice,
		RealizedPnL:   r.RealizedPnL,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

// SavePosition upserts the position row within tx.
func (s *Store) SavePosition(tx *gorm.DB, p domain.Position) error {
	if tx == nil {
		tx = s.db
	}
	record := PositionRecord{
		Symbol:        p.Symbol,
		Quantity:      p.Quantity,
		AvgEntryPrice: p.AvgEntryPrice,
		RealizedPnL:   p.RealizedPnL,
		UpdatedAt:     p.UpdatedAt,
	}
	err := tx.Save(&record).Error
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

// AppendPnL records one realized-P&L ledger line within tx. fillID is the
// unique key: a second append for the same fill fails on the unique index
// with an error rather than double-recording P&L.
func (s *Store) AppendPnL(tx *gorm.DB, symbol, orderID, fillID string, realizedDelta decimal.Decimal, at time.Time) error {
	if tx == nil {
		tx = s.db
	}
	entry := PnLEntry{
		ID:            domain.NewID(),
		Symbol:        symbol,
		OrderID:       orderID,
		FillID:        fillID,
		RealizedDelta: realizedDelta,
		CreatedAt:     at,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append pnl entry: %w", err)
	}
	return nil
}

// TotalRealizedPnL sums every ledger entry ever recorded.
func (s *Store) TotalRealizedPnL() (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := s.db.Model(&PnLEntry{}).Select("SUM(realized_delta)").Scan(&total).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum total realized pnl: %w", err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// DailyRealizedPnL sums ledger entries recorded since the start of day (in
// the given location) containing `now`. Pass a transaction handle to read
// entries appended earlier in that same transaction (not yet committed);
// nil falls back to the store's own connection.
func (s *Store) DailyRealizedPnL(tx *gorm.DB, now time.Time) (decimal.Decimal, error) {
	if tx == nil {
		tx = s.db
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var total decimal.NullDecimal
	err := tx.Model(&PnLEntry{}).Where("created_at >= ?", dayStart).Select("SUM(realized_delta)").Scan(&total).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum daily realized pnl: %w", err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
