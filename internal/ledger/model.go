// Package ledger tracks positions and realized P&L resulting from applied
// fills, persisted via gorm, and serves the account-state snapshot the
// risk engine evaluates every order against.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionRecord is the gorm-persisted representation of a Position.
type PositionRecord struct {
	Symbol        string          `gorm:"primaryKey"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4)"`
	AvgEntryPrice decimal.Decimal `gorm:"type:decimal(18,4)"`
	RealizedPnL   decimal.Decimal `gorm:"type:decimal(18,4)"`
	UpdatedAt     time.Time
}

// TableName pins the table name.
func (PositionRecord) TableName() string {
	return "positions"
}

// PnLEntry is one ledger line appended whenever a fill realizes P&L.
type PnLEntry struct {
	ID            string `gorm:"primaryKey"`
	Symbol        string `gorm:"index"`
	OrderID       string `gorm:"index"`
	FillID        string `gorm:"uniqueIndex"`
	RealizedDelta decimal.Decimal `gorm:"type:decimal(18,4)"`
	CreatedAt     time.Time `gorm:"index"`
}

// TableName pins the table name.
func (PnLEntry) TableName() string {
	return "pnl_entries"
}
