// Package ui holds opaque client-facing UI state: a key/value map
// mirrored best-effort to the database (spec.md §4.8).
package ui

import "sync"

// Store is an in-memory key -> opaque value map. DB persistence is the
// caller's concern (see internal/persistence/sqlite); Store itself never
// touches the database directly, matching the "memory is authoritative"
// policy of spec.md §7.
type Store struct {
	mu    sync.RWMutex
	state map[string]any
}

// New constructs an empty Store.
func New() *Store {
	return &Store{state: make(map[string]any)}
}

// Set writes a key unconditionally into memory. The caller is
// responsible for best-effort persistence before or after calling Set;
// either order is correct since memory is authoritative regardless of
// whether the DB write succeeds (spec.md §4.8).
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
}

// Get returns a key's current value.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[key]
	return v, ok
}

// Snapshot returns a copy of the full key/value map, for broadcast
// construction.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// ReplaceAll replaces the entire in-memory map, used at startup to load
// the persisted snapshot when a database is open.
func (s *Store) ReplaceAll(snapshot map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		s.state[k] = v
	}
}
