package outbox

import (
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStoreAppendAndPending(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	if err := store.Append(nil, "order-1", "OrderPlaced", map[string]string{"order_id": "order-1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	pending, err := store.Pending(10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].Status != EventStatusPending {
		t.Errorf("Status = %s, want PENDING", pending[0].Status)
	}
}

func TestStoreMarkPublished(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	store.Append(nil, "order-1", "OrderPlaced", "{}")

	pending, _ := store.Pending(10)
	if err := store.MarkPublished(pending[0].ID); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}

	remaining, _ := store.Pending(10)
	if len(remaining) != 0 {
		t.Fatalf("len(remaining pending) = %d, want 0 after publish", len(remaining))
	}
}

func TestStoreMarkFailedAttemptDeadLettersAfterMax(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	store.Append(nil, "order-1", "OrderPlaced", "{}")

	pending, _ := store.Pending(10)
	id := pending[0].ID

	if err := store.MarkFailedAttempt(id, MaxAttempts, errors.New("boom")); err != nil {
		t.Fatalf("MarkFailedAttempt: %v", err)
	}

	var event Event
	if err := store.db.First(&event, id).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if event.Status != EventStatusFailed {
		t.Errorf("Status = %s, want FAILED after reaching MaxAttempts", event.Status)
	}
}

func TestWorkerDrainOnceRetriesOnError(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	store.Append(nil, "order-1", "OrderPlaced", "{}")

	calls := 0
	worker := NewWorker(store, func(event Event) error {
		calls++
		return errors.New("transient failure")
	}, 0, 10)

	worker.drainOnce()

	if calls != 1 {
		t.Fatalf("publish calls = %d, want 1", calls)
	}

	pending, _ := store.Pending(10)
	if len(pending) != 1 {
		t.Fatal("event should remain pending after a single failed attempt")
	}
	if pending[0].Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", pending[0].Attempts)
	}
}

func TestWorkerDrainOnceMarksPublishedOnSuccess(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	store.Append(nil, "order-1", "OrderPlaced", "{}")

	worker := NewWorker(store, func(event Event) error { return nil }, 0, 10)
	worker.drainOnce()

	pending, _ := store.Pending(10)
	if len(pending) != 0 {
		t.Fatal("event should no longer be pending after successful publish")
	}
}
