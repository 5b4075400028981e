package identity

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu  sync.Mutex
	ids map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: map[string]string{}}
}

func (s *MemoryStore) Get(_ context.Context, namespace string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.ids[namespace]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, namespace string, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.ids[namespace]; ok {
		return existing, nil
	}
	s.ids[namespace] = id
	return id, nil
}
