package store

import (
	"context"
	"sync"
	"time"
)

// Result reports the outcome of one reservation attempt.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time // when the oldest occupied slot frees
	Limit     int
}

// InMemoryWindowStore tracks outbound requests per provider in a sliding
// window. Sliding rather than fixed windows so bursts straddling a window
// boundary cannot double the effective rate.
type InMemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow

	// now is swappable in tests.
	now func() time.Time
}

// slidingWindow holds the reservation timestamps for one provider.
type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

// NewInMemoryWindowStore creates an empty store.
func NewInMemoryWindowStore() *InMemoryWindowStore {
	return &InMemoryWindowStore{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
}

// Reserve attempts to occupy one slot for key. When denied, ResetAt carries
// the earliest instant a retry could succeed, so callers can sleep precisely
// instead of polling.
func (s *InMemoryWindowStore) Reserve(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sw := s.getOrCreate(key, window)
	sw.trim(now)

	if len(sw.timestamps) < limit {
		sw.timestamps = append(sw.timestamps, now)
		return &Result{
			Allowed:   true,
			Remaining: limit - len(sw.timestamps),
			ResetAt:   sw.timestamps[0].Add(window),
			Limit:     limit,
		}, nil
	}

	return &Result{
		Allowed:   false,
		Remaining: 0,
		ResetAt:   sw.timestamps[0].Add(window),
		Limit:     limit,
	}, nil
}

// Reset clears all reservations for a key.
func (s *InMemoryWindowStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Count returns the live reservation count for a key.
func (s *InMemoryWindowStore) Count(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw := s.windows[key]
	if sw == nil {
		return 0, nil
	}
	sw.trim(s.now())
	return len(sw.timestamps), nil
}

// trim drops timestamps that have slid out of the window.
func (sw *slidingWindow) trim(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

// getOrCreate must be called while holding s.mu.
func (s *InMemoryWindowStore) getOrCreate(key string, window time.Duration) *slidingWindow {
	if sw := s.windows[key]; sw != nil {
		return sw
	}
	sw := &slidingWindow{window: window}
	s.windows[key] = sw
	return sw
}
