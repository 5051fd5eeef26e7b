package kv

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store. Used for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	keys   []string // sorted
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

// NewMemoryNamespaces creates one memory store per namespace.
func NewMemoryNamespaces() *Namespaces {
	return &Namespaces{
		Playlists:      NewMemoryStore(),
		PlaylistGroups: NewMemoryStore(),
		PlaylistItems:  NewMemoryStore(),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		i, _ := slices.BinarySearch(s.keys, key)
		s.keys = slices.Insert(s.keys, i, key)
	}
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	if i, found := slices.BinarySearch(s.keys, key); found {
		s.keys = slices.Delete(s.keys, i, i+1)
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.limit()
	start, _ := slices.BinarySearch(s.keys, opts.Prefix)
	if after := opts.startAfter(); after != "" {
		i, found := slices.BinarySearch(s.keys, after)
		if found {
			i++
		}
		start = max(start, i)
	}

	keys := make([]string, 0, limit+1)
	for _, k := range s.keys[start:] {
		if !hasPrefix(k, opts.Prefix) {
			break
		}
		keys = append(keys, k)
		if len(keys) > limit {
			break
		}
	}
	return page(keys, limit), nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Keys returns a copy of all keys in order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.keys)
}
