package pipeline

import "sync"

// SeenSet is the in-memory set of identifiers a receiver has already delivered.
// It only grows during a run.
type SeenSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewSeenSet(ids []string) *SeenSet {
	s := &SeenSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *SeenSet) Has(id string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	_, ok := s.ids[id]
	s.mu.RUnlock()
	return ok
}

func (s *SeenSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *SeenSet) add(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}
