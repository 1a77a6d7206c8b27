package vars

import (
	"maps"
	"sort"
)

// Store is a flat key → tagged value map. Stores are owned by the simulation
// goroutine and are not safe for concurrent use.
type Store struct {
	values map[string]Value
	dirty  bool
}

func NewStore() *Store {
	return &Store{values: make(map[string]Value, 8)}
}

// Get returns the value under key.
func (s *Store) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores v under key and marks the store dirty.
func (s *Store) Set(key string, v Value) {
	s.values[key] = v
	s.dirty = true
}

// Delete removes key. Missing keys are ignored.
func (s *Store) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

func (s *Store) Len() int { return len(s.values) }

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of every entry.
func (s *Store) Snapshot() map[string]Value {
	return maps.Clone(s.values)
}

// Dirty reports whether the store changed since the last ClearDirty.
func (s *Store) Dirty() bool { return s.dirty }
func (s *Store) ClearDirty() { s.dirty = false }
