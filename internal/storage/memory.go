package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs unit tests and
// short-lived embedded sessions where persistence is not required.
type MemoryStore struct {
	mutex sync.RWMutex
	items map[string]Entry
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Entry),
		now:   time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, found := s.items[key]
	if !found || entry.Expired(s.now()) {
		return nil, nil
	}
	copied := entry
	return &copied, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry := Entry{Value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl)
	}
	s.items[key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.items, key)
	return nil
}
