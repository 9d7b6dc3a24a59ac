package order

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lumenquant/tradingcore/internal/domain"
)

// ErrIdempotencyConflict describes reuse of an idempotency key with
// different order parameters. Place does not return it: a repeated key
// returns the existing order whatever the parameters.
var ErrIdempotencyConflict = errors.New("order: idempotency key already used with different parameters")

// Store is the gorm-backed order repository.
type Store struct {
	db *gorm.DB
}

// NewStore opens (and auto-migrates) the orders table.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate orders table: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying connection for transactional use from Service.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FindByIdempotencyKey returns the order previously placed under this key,
// if any.
func (s *Store) FindByIdempotencyKey(key string) (*domain.Order, error) {
	var r Record
	err := s.db.Where("idempotency_key = ?", key).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order by idempotency key: %w", err)
	}
	return fromRecord(r), nil
}

// Get returns an order by ID.
func (s *Store) Get(id string) (*domain.Order, error) {
	var r Record
	err := s.db.Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return fromRecord(r), nil
}

// Create inserts a new order row within tx (or the store's own connection
// if tx is nil).
func (s *Store) Create(tx *gorm.DB, o *domain.Order) error {
	if tx == nil {
		tx = s.db
	}
	record := toRecord(o)
	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// UpdateState persists a validated state transition plus any fill/reject
// fields that changed alongside it.
func (s *Store) UpdateState(tx *gorm.DB, o *domain.Order) error {
	if tx == nil {
		tx = s.db
	}
	record := toRecord(o)
	err := tx.Model(&Record{}).Where("id = ?", o.ID).Updates(map[string]any{
		"state":           record.State,
		"filled_quantity": record.FilledQuantity,
		"avg_fill_price":  record.AvgFillPrice,
		"broker_order_id": record.BrokerOrderID,
		"reject_reason":   record.RejectReason,
		"updated_at":      record.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	return nil
}

// OpenOrderCount returns the number of non-terminal orders for a symbol,
// used by the risk engine's max-open-orders check.
func (s *Store) OpenOrderCount(symbol string) (int, error) {
	var count int64
	err := s.db.Model(&Record{}).
		Where("symbol = ? AND state NOT IN ?", symbol, []string{
			string(domain.OrderStateFilled),
			string(domain.OrderStateCancelled),
			string(domain.OrderStateRejected),
			string(domain.OrderStateExpired),
		}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count open orders: %w", err)
	}
	return int(count), nil
}
