package store

import (
	"context"
	"sync"

	"github.com/satriahrh/scenery-voice/domain/repositories"
)

// MemoryStore keeps the session identifier for the life of the process
type MemoryStore struct {
	mu sync.RWMutex
	id string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.id == "" {
		return "", repositories.ErrSessionNotFound
	}
	return s.id, nil
}

func (s *MemoryStore) Put(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = sessionID
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	return nil
}
