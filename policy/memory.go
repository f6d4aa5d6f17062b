package policy

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process [Store] for tests and single-node embedding.
type MemoryStore struct {
	mu    sync.Mutex
	rules []Rule
}

// NewMemoryStore creates an in-memory policy store seeded with the given
// rules.
func NewMemoryStore(rules ...Rule) *MemoryStore {
	s := &MemoryStore{}
	s.rules = append(s.rules, rules...)
	return s
}

func (s *MemoryStore) LoadAll(context.Context) ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Rule(nil), s.rules...), nil
}

func (s *MemoryStore) AddRule(_ context.Context, r Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rules {
		if existing == r {
			return nil
		}
	}
	s.rules = append(s.rules, r)
	return nil
}

func (s *MemoryStore) RemoveRule(_ context.Context, r Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rules {
		if existing == r {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return nil
}
