package store

import (
	"context"
	"fmt"
	"sync"

	"tellus/pkg/platform/sentinel"
)

// InMemoryStore keeps entries in a map. The default backend when no external
// store is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*Entry)}
}

func (s *InMemoryStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[fingerprint]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return entry.Clone(), nil
}

func (s *InMemoryStore) Put(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Fingerprint == "" {
		return fmt.Errorf("entry with fingerprint is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Fingerprint] = entry.Clone()
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fingerprint)
	return nil
}

// Len reports the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
