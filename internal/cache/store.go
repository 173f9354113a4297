package cache

import (
	"sync"

	"github.com/google/uuid"
)

// Store is a concurrency-safe keyed collection that remembers insertion order.
//
// Upserting an existing key overwrites the value in place, so Snapshot order is the
// order in which keys were first seen. Every method holds the store lock only for the
// duration of the in-memory operation.
type Store[V any] struct {
	mu     sync.RWMutex
	index  map[uuid.UUID]int
	values []V
}

// NewStore creates an empty store.
func NewStore[V any]() *Store[V] {
	return &Store[V]{
		index: make(map[uuid.UUID]int),
	}
}

// Get returns the value cached for id.
func (s *Store[V]) Get(id uuid.UUID) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	position, ok := s.index[id]
	if !ok {
		var zero V
		return zero, false
	}

	return s.values[position], true
}

// Contains reports whether id is cached.
func (s *Store[V]) Contains(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.index[id]
	return ok
}

// Upsert inserts value under id or overwrites the existing entry in place.
// It reports whether the key was new.
func (s *Store[V]) Upsert(id uuid.UUID, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if position, ok := s.index[id]; ok {
		s.values[position] = value
		return false
	}
	s.index[id] = len(s.values)
	s.values = append(s.values, value)

	return true
}

// Len returns the number of cached entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}

// Snapshot returns a copy of all values in insertion order.
func (s *Store[V]) Snapshot() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]V(nil), s.values...)
}

// Filter returns the values accepted by keep, in insertion order.
//
// keep runs under the read lock and must not call back into the store.
func (s *Store[V]) Filter(keep func(V) bool) []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]V, 0)
	for _, value := range s.values {
		if keep(value) {
			filtered = append(filtered, value)
		}
	}

	return filtered
}

// Clear drops every entry.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = make(map[uuid.UUID]int)
	s.values = nil
}
