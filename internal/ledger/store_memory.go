package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps the verified-token set in process memory. Safe under
// concurrent verification; concurrent marks of one token converge to the
// same verified state.
type MemoryStore struct {
	mu       sync.RWMutex
	verified map[string]struct{}
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{verified: make(map[string]struct{})}
}

func (s *MemoryStore) MarkVerified(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified[token] = struct{}{}
	return nil
}

func (s *MemoryStore) IsVerified(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.verified[token]
	return ok, nil
}
