package ratelimit

import (
	"sync"
	"time"
)

// MemoryStore is the default in-process CounterStore: a map of timestamp
// slices guarded by a mutex. Counters are ephemeral and rebuilt from zero on
// restart; the 5/10 limits only hold for a single-process deployment.
//
// Memory is bounded by Purge, which the limiter invokes on every check: it
// drops timestamps older than the window and removes keys whose slice
// becomes empty.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]time.Time)}
}

// Record appends one event for key at t.
func (s *MemoryStore) Record(key string, t time.Time) error {
	s.mu.Lock()
	s.events[key] = append(s.events[key], t)
	s.mu.Unlock()
	return nil
}

// CountInWindow reports how many events for key fall within the trailing
// window ending at now.
func (s *MemoryStore) CountInWindow(key string, now time.Time, window time.Duration) (int, error) {
	cutoff := now.Add(-window)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.events[key] {
		if t.After(cutoff) {
			n++
		}
	}
	return n, nil
}

// Purge drops events at or before the cutoff and evicts keys left empty.
func (s *MemoryStore) Purge(before time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, times := range s.events {
		kept := times[:0]
		for _, t := range times {
			if t.After(before) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(s.events, key)
			continue
		}
		s.events[key] = kept
	}
}
