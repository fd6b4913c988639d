package memory

import (
	"context"
	"sync"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
)

// CheckpointStore keeps crawl state for the life of the process.
type CheckpointStore struct {
	mu     sync.Mutex
	states map[string]crawler.State
}

var _ crawler.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore returns an empty store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{states: make(map[string]crawler.State)}
}

// Load returns the saved state for source.
func (s *CheckpointStore) Load(_ context.Context, source string) (crawler.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[source]
	return st, ok, nil
}

// Save records state for source.
func (s *CheckpointStore) Save(_ context.Context, source string, state crawler.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[source] = state
	return nil
}

// Clear drops the saved state for source.
func (s *CheckpointStore) Clear(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, source)
	return nil
}
