package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	ids    map[string]map[string]struct{}
	order  map[string][]string
	closed bool
}

// NewMemory returns a process-local store.
func NewMemory() IdentifierStore {
	return &memoryStore{
		ids:   map[string]map[string]struct{}{},
		order: map[string][]string{},
	}
}

func (s *memoryStore) LoadAll(_ context.Context, source string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return append([]string(nil), s.order[source]...), nil
}

func (s *memoryStore) Create(_ context.Context, source, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	set := s.ids[source]
	if set == nil {
		set = map[string]struct{}{}
		s.ids[source] = set
	}
	if _, ok := set[id]; ok {
		return nil
	}
	set[id] = struct{}{}
	s.order[source] = append(s.order[source], id)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
