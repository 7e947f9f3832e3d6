package cache

import (
	"context"
	"maps"
	"sync"

	"github.com/pricecycle/backend/internal/domain/automation"
)

// InMemoryStateStore keeps the encoded run state in process memory. State is
// lost on restart, so it only suits tests and throwaway runs.
type InMemoryStateStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	saves  int
}

// NewInMemoryStateStore creates an empty store
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{values: make(map[string][]byte)}
}

// Load implements automation.StateStore
func (s *InMemoryStateStore) Load(_ context.Context) (*automation.RunState, error) {
	s.mu.RLock()
	values := maps.Clone(s.values)
	s.mu.RUnlock()
	return automation.DecodeState(values)
}

// Save implements automation.StateStore
func (s *InMemoryStateStore) Save(_ context.Context, state *automation.RunState) error {
	encoded, err := automation.EncodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values = encoded
	s.saves++
	s.mu.Unlock()
	return nil
}

// Saves returns how many times Save succeeded
func (s *InMemoryStateStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

var _ automation.StateStore = (*InMemoryStateStore)(nil)
