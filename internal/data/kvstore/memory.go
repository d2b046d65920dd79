package kvstore

import (
	"context"
	"sync"
)

// MemoryStore is the dependency-free in-memory backend used by tests and
// single-process development runs.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]map[string][]byte
	sets     map[string]map[string]struct{}
	counters map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     map[string]map[string][]byte{},
		sets:     map[string]map[string]struct{}{},
		counters: map[string]int64{},
	}
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.docs[collection]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := coll[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, collection, id string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.docs[collection]
	if !ok {
		coll = map[string][]byte{}
		s.docs[collection] = coll
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	coll[id] = cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if coll, ok := s.docs[collection]; ok {
		delete(coll, id)
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, collection string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string][]byte{}
	for id, doc := range s.docs[collection] {
		cp := make([]byte, len(doc))
		copy(cp, doc)
		out[id] = cp
	}
	return out, nil
}

func (s *MemoryStore) SetAdd(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = map[string]struct{}{}
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *MemoryStore) SetAddNX(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = map[string]struct{}{}
		s.sets[key] = set
	}
	if _, exists := set[member]; exists {
		return false, nil
	}
	set[member] = struct{}{}
	return true, nil
}

func (s *MemoryStore) SetRemove(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[key]; ok {
		delete(set, member)
	}
	return nil
}

func (s *MemoryStore) SetContains(_ context.Context, key, member string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[key]
	if !ok {
		return false, nil
	}
	_, exists := set[member]
	return exists, nil
}

func (s *MemoryStore) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *MemoryStore) Close() error { return nil }
