package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Publisher is a callback invoked for each pending event; it returns an
// error to trigger a retry (or dead-letter once MaxAttempts is reached).
type Publisher func(event Event) error

// Worker drains pending events on a fixed delay from a durable, retryable
// event table.
type Worker struct {
	store       *Store
	publish     Publisher
	fixedDelay  time.Duration
	batchSize   int
}

// NewWorker builds a publisher worker polling at fixedDelay, draining up
// to batchSize pending events per tick.
func NewWorker(store *Store, publish Publisher, fixedDelay time.Duration, batchSize int) *Worker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Worker{store: store, publish: publish, fixedDelay: fixedDelay, batchSize: batchSize}
}

// Run blocks, draining pending events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.fixedDelay)
	defer ticker.Stop()

	log.Info().Dur("interval", w.fixedDelay).Msg("📮 outbox publisher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("📮 outbox publisher stopped")
			return
		case <-ticker.C:
			w.drainOnce()
		}
	}
}

func (w *Worker) drainOnce() {
	events, err := w.store.Pending(w.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("❌ failed to load pending outbox events")
		return
	}

	for _, event := range events {
		if err := w.publish(event); err != nil {
			attempts := event.Attempts + 1
			if markErr := w.store.MarkFailedAttempt(event.ID, attempts, err); markErr != nil {
				log.Error().Err(markErr).Uint("event_id", event.ID).Msg("❌ failed to record outbox publish failure")
			}
			if attempts >= MaxAttempts {
				log.Error().Err(err).Uint("event_id", event.ID).Str("type", event.EventType).Msg("💀 outbox event dead-lettered")
				if event.EventType != "OutboxEventPoisoned" {
					payload := map[string]any{"event_id": event.ID, "event_type": event.EventType, "error": err.Error()}
					if appendErr := w.store.Append(nil, event.AggregateID, "OutboxEventPoisoned", payload); appendErr != nil {
						log.Error().Err(appendErr).Uint("event_id", event.ID).Msg("❌ failed to append poisoned-event alert")
					}
				}
			} else {
				log.Warn().Err(err).Uint("event_id", event.ID).Int("attempt", attempts).Msg("⚠️ outbox publish failed, will retry")
			}
			continue
		}

		if err := w.store.MarkPublished(event.ID); err != nil {
			log.Error().Err(err).Uint("event_id", event.ID).Msg("❌ failed to mark outbox event published")
			continue
		}
		log.Debug().Uint("event_id", event.ID).Str("type", event.EventType).Msg("📤 outbox event published")
	}
}
