package session

import (
	"context"
	"errors"
	"sync"
)

// SessionKey is the storage key holding the persisted session projection.
const SessionKey = "auth-session"

// ErrNotFound is returned by Storage.Load when no value exists for a key.
var ErrNotFound = errors.New("storage key not found")

// Storage persists opaque state blobs keyed by name. Implementations must
// be safe for concurrent use.
type Storage interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Watcher is implemented by storages that can report external changes to a
// key, such as another process rotating the persisted session.
type Watcher interface {
	Watch(ctx context.Context, key string, onChange func()) error
}

// MemoryStorage is an in-process Storage, used in tests and for callers
// that want no durability.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

// Save implements Storage.
func (s *MemoryStorage) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[key] = cp
	return nil
}

// Load implements Storage.
func (s *MemoryStorage) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Delete implements Storage.
func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
