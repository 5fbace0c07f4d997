package kv

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. It backs tests and deployments that
// run without Redis; contents do not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	lists map[string][][]byte
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string][]byte),
		lists: make(map[string][][]byte),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys implements Store.
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, list string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.lists[list] = append(s.lists[list], cp)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, list string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vals := s.lists[list]
	out := make([][]byte, len(vals))
	copy(out, vals)
	return out, nil
}

// Drain implements Store.
func (s *MemoryStore) Drain(_ context.Context, list string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals := s.lists[list]
	delete(s.lists, list)
	return vals, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
