// Package memory provides the bounded in-memory event store backing the
// dashboard's live views.
package memory

import (
	"context"
	"sync"

	"tollgate/internal/events"
)

// DefaultWindow is the most-recent-N retention for in-memory views.
const DefaultWindow = 100

// Store keeps the most recent events in process memory, newest first.
type Store struct {
	mu     sync.RWMutex
	window int
	recent []events.Event
}

// New constructs a store retaining at most window events; window <= 0 uses
// DefaultWindow.
func New(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{window: window}
}

func (s *Store) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append([]events.Event{event}, s.recent...)
	if len(s.recent) > s.window {
		s.recent = s.recent[:s.window]
	}
	return nil
}

func (s *Store) Query(_ context.Context, filter events.Filter) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]events.Event, 0, len(s.recent))
	for _, e := range s.recent {
		if !filter.Since.IsZero() && !e.Timestamp.After(filter.Since) {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
