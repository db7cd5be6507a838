// Package memory provides the in-memory settings store used by the demo and
// by tests.
package memory

import (
	"context"
	"sync"

	"tollgate/internal/settings"
)

// Store holds the active settings in process memory.
type Store struct {
	mu      sync.RWMutex
	current settings.Settings

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(settings.Settings)
}

// New constructs a store seeded with the given settings.
func New(initial settings.Settings) *Store {
	return &Store{
		current: initial.Normalized(),
		subs:    make(map[int]func(settings.Settings)),
	}
}

func (s *Store) Read(_ context.Context) (settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// Write validates, normalizes, and stores new settings, then notifies
// subscribers. Last write wins; in-flight evaluations are not linearized
// against writes.
func (s *Store) Write(_ context.Context, next settings.Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	next = next.Normalized()

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.notify(next)
	return nil
}

func (s *Store) Subscribe(fn func(settings.Settings)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(next settings.Settings) {
	s.subMu.Lock()
	fns := make([]func(settings.Settings), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}
