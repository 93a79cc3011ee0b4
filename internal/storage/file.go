package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists entries as a single JSON document on disk. It is
// the localStorage analog for single-visitor embedded deployments:
// contents survive process restarts, writes are atomic via a temp-file
// rename.
type FileStore struct {
	path  string
	mutex sync.Mutex
	items map[string]Entry
	now   func() time.Time
}

// NewFileStore opens (or creates) the store file at path.
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{
		path:  path,
		items: make(map[string]Entry),
		now:   time.Now,
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}
	return nil
}

func (s *FileStore) persist() error {
	data, err := json.Marshal(s.items)
	if err != nil {
		return fmt.Errorf("failed to marshal store contents: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close store file: %w", err)
	}
	return os.Rename(tmpName, s.path)
}

func (s *FileStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, found := s.items[key]
	if !found || entry.Expired(s.now()) {
		return nil, nil
	}
	copied := entry
	return &copied, nil
}

func (s *FileStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry := Entry{Value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl)
	}
	s.items[key] = entry
	return s.persist()
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.items[key]; !found {
		return nil
	}
	delete(s.items, key)
	return s.persist()
}
