// Package outbox implements the transactional outbox pattern: domain
// writes append an OutboxEvent in the same transaction, and a background
// publisher drains pending events with bounded retry and a dead-letter
// state after exhausting attempts.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EventStatus is the lifecycle state of an outbox event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "PENDING"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusFailed    EventStatus = "FAILED" // dead-lettered after MaxAttempts
)

// MaxAttempts is the number of publish attempts before an event is
// dead-lettered.
const MaxAttempts = 10

// Event is a gorm-persisted outbox row.
type Event struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	AggregateID string `gorm:"index"`
	EventType   string `gorm:"index"`
	Payload     string `gorm:"type:text"`
	Status      EventStatus `gorm:"index"`
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// TableName pins the table name.
func (Event) TableName() string {
	return "outbox_events"
}

// Store writes and reads outbox events.
type Store struct {
	db *gorm.DB
}

// NewStore opens (and auto-migrates) the outbox table.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("migrate outbox table: %w", err)
	}
	return &Store{db: db}, nil
}

// Append writes a new PENDING event. Callers that need transactional
// atomicity with a domain write should call Append with a *gorm.DB that is
// already inside a transaction (e.g. via db.Transaction(...)).
func (s *Store) Append(tx *gorm.DB, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	event := Event{
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     string(body),
		Status:      EventStatusPending,
	}
	if tx == nil {
		tx = s.db
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// DB exposes the underlying connection so callers can wrap a domain write
// and an outbox Append in one transaction.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Pending returns up to limit PENDING events, oldest first.
func (s *Store) Pending(limit int) ([]Event, error) {
	var events []Event
	err := s.db.Where("status = ?", EventStatusPending).
		Order("created_at asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("query pending outbox events: %w", err)
	}
	return events, nil
}

// MarkPublished transitions an event to PUBLISHED.
func (s *Store) MarkPublished(id uint) error {
	now := time.Now()
	return s.db.Model(&Event{}).Where("id = ?", id).
		Updates(map[string]any{"status": EventStatusPublished, "published_at": &now}).Error
}

// MarkFailedAttempt increments the attempt counter and dead-letters the
// event once MaxAttempts is reached.
func (s *Store) MarkFailedAttempt(id uint, attempts int, lastErr error) error {
	status := EventStatusPending
	if attempts >= MaxAttempts {
		status = EventStatusFailed
	}
	return s.db.Model(&Event{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "attempts": attempts, "last_error": lastErr.Error()}).Error
}
