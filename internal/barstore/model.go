// Package barstore persists sealed bars and serves reads cache-first from a
// bounded per-symbol ring before falling back to the durable gorm store.
package barstore

import (
	"time"

	"github.com/shopspring/decimal"
)

// BarRecord is the gorm-persisted representation of a sealed bar.
type BarRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Symbol    string `gorm:"index:idx_symbol_interval_open,priority:1"`
	Interval  string `gorm:"index:idx_symbol_interval_open,priority:2"`
	Open      decimal.Decimal `gorm:"type:decimal(18,4)"`
	High      decimal.Decimal `gorm:"type:decimal(18,4)"`
	Low       decimal.Decimal `gorm:"type:decimal(18,4)"`
	Close     decimal.Decimal `gorm:"type:decimal(18,4)"`
	Volume    decimal.Decimal `gorm:"type:decimal(24,8)"`
	OpenTime  time.Time       `gorm:"index:idx_symbol_interval_open,priority:3"`
	CloseTime time.Time
	CreatedAt time.Time
}

// TableName pins the table name via an explicit TableName() method.
func (BarRecord) TableName() string {
	return "bars"
}
