package keys

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process [Store] for tests and single-node embedding.
type MemoryStore struct {
	mu      sync.Mutex
	nextKid int64
	keys    []SigningKey
}

// NewMemoryStore creates an empty in-memory signing key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextKid: 1}
}

func (s *MemoryStore) Append(_ context.Context, material []byte, createdAt time.Time) (SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := SigningKey{
		Kid:       s.nextKid,
		Material:  append([]byte(nil), material...),
		CreatedAt: createdAt,
	}
	s.nextKid++
	s.keys = append(s.keys, key)
	return key, nil
}

func (s *MemoryStore) LoadAll(context.Context) ([]SigningKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SigningKey(nil), s.keys...), nil
}

func (s *MemoryStore) DeleteOldest(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.keys) {
		s.keys = nil
		return nil
	}
	s.keys = append([]SigningKey(nil), s.keys[n:]...)
	return nil
}
