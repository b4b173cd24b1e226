package ratelimit

import (
	"context"
	"sync"
	"time"

	"platform-backend/internal/clock"
)

// Decision is the outcome of one atomic check-and-deduct on a window.
type Decision struct {
	Allowed   bool
	Used      int
	StartedAt time.Time
}

// WindowStore holds per-(client, rule) consumption windows. Implementations
// must serialize Take calls for the same key; calls for different keys must
// not block each other.
type WindowStore interface {
	// Take applies the fixed-window algorithm for key: lazily resets an
	// expired window, then commits cost only if used+cost <= capacity.
	// A denied Take leaves the window unchanged.
	Take(ctx context.Context, key string, window time.Duration, capacity, cost int) (Decision, error)

	// Peek reports consumption without mutating. An expired window reads
	// as empty.
	Peek(ctx context.Context, key string, window time.Duration) (used int, startedAt time.Time, err error)

	// Remove clears the given window keys.
	Remove(ctx context.Context, keys ...string) error
}

// MemoryStore is the in-process WindowStore. One mutex per window entry;
// the outer map lock is held only long enough to find or insert the entry.
type MemoryStore struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]*windowEntry
}

type windowEntry struct {
	mu        sync.Mutex
	used      int
	startedAt time.Time
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   clk,
		entries: make(map[string]*windowEntry),
	}
}

func (s *MemoryStore) acquire(key string) *windowEntry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e
	}
	e = &windowEntry{}
	s.entries[key] = e
	return e
}

func (s *MemoryStore) Take(ctx context.Context, key string, window time.Duration, capacity, cost int) (Decision, error) {
	e := s.acquire(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.clock.Now()
	if e.startedAt.IsZero() || now.Sub(e.startedAt) >= window {
		e.used = 0
		e.startedAt = now
	}

	if e.used+cost > capacity {
		return Decision{Allowed: false, Used: e.used, StartedAt: e.startedAt}, nil
	}
	e.used += cost
	return Decision{Allowed: true, Used: e.used, StartedAt: e.startedAt}, nil
}

func (s *MemoryStore) Peek(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	now := s.clock.Now()
	if !ok {
		return 0, now, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startedAt.IsZero() || now.Sub(e.startedAt) >= window {
		// Expired: reads as a fresh window. The actual reset happens on
		// the next Take.
		return 0, now, nil
	}
	return e.used, e.startedAt, nil
}

func (s *MemoryStore) Remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}
