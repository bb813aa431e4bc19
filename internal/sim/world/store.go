package world

import "sync"

// Store guards the active world. Every mutation, whether from the tick loop or
// an API call, goes through Update so readers never see a half-applied tick.
type Store struct {
	mu sync.RWMutex
	w  *World
}

func NewStore(w *World) *Store {
	if w == nil {
		w = New("default", "default")
	}
	w.Normalize()
	return &Store{w: w}
}

func (s *Store) View(fn func(w *World)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.w)
}

func (s *Store) Update(fn func(w *World) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.w)
}

// Replace swaps the whole active world, e.g. on world select.
func (s *Store) Replace(w *World) {
	w.Normalize()
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

// Snapshot returns a deep copy taken under the read lock.
func (s *Store) Snapshot() *World {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Clone()
}

func (s *Store) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.ID
}

func (s *Store) Epoch() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Epoch
}
