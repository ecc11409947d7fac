package transcript

import (
	"context"
	"sync"
)

// Store is the durable keyed persistence for transcripts. Get returns an
// empty transcript (and no error) when the session has no stored history.
// Put replaces the whole value in a single write.
type Store interface {
	Get(ctx context.Context, sessionID string) (Transcript, error)
	Put(ctx context.Context, sessionID string, t Transcript) error
}

// MemoryStore keeps transcripts in a mutex-guarded map. Used in tests and as
// the no-infrastructure fallback driver.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Transcript
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Transcript)}
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (Transcript, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Clone(s.data[sessionID]), nil
}

func (s *MemoryStore) Put(ctx context.Context, sessionID string, t Transcript) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = Clone(t)
	return nil
}
