package fill

import (
	"sync"
	"time"
)

const (
	dedupCapacity = 10_000
	dedupTTL      = time.Hour
)

// DuplicateFilter is a capped, TTL'd concurrent set of fill IDs already
// processed. Grounded on the bounded per-symbol bar cache's fixed-depth
// eviction style, applied here to time rather than count as the primary
// eviction trigger.
type DuplicateFilter struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDuplicateFilter builds an empty filter.
func NewDuplicateFilter() *DuplicateFilter {
	return &DuplicateFilter{seen: make(map[string]time.Time)}
}

// PutIfAbsent claims fillID at time now. It returns true if this call is the
// first to claim it (the fill should be processed), false if it was already
// claimed and still within its TTL (the fill is a duplicate and must be
// dropped).
func (d *DuplicateFilter) PutIfAbsent(fillID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pruneLocked(now)

	if claimedAt, ok := d.seen[fillID]; ok && now.Sub(claimedAt) < dedupTTL {
		return false
	}
	d.seen[fillID] = now
	return true
}

// pruneLocked drops expired entries and, if still over capacity, evicts the
// oldest entries until back under the cap. Must be called with mu held.
func (d *DuplicateFilter) pruneLocked(now time.Time) {
	for id, claimedAt := range d.seen {
		if now.Sub(claimedAt) >= dedupTTL {
			delete(d.seen, id)
		}
	}

	if len(d.seen) < dedupCapacity {
		return
	}

	// Over capacity even after TTL pruning: evict the oldest entries first.
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(d.seen))
	for id, at := range d.seen {
		entries = append(entries, entry{id, at})
	}
	for len(d.seen) >= dedupCapacity {
		oldestIdx := 0
		for i := range entries {
			if entries[i].at.Before(entries[oldestIdx].at) {
				oldestIdx = i
			}
		}
		delete(d.seen, entries[oldestIdx].id)
		entries[oldestIdx] = entries[len(entries)-1]
		entries = entries[:len(entries)-1]
	}
}
