package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

// MemoryHistoryStore is an in-process HistoryStore with the same versioning
// rules as the Mongo store.
type MemoryHistoryStore struct {
	mu   sync.Mutex
	docs map[string]*domain.StreamerHistory
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{docs: make(map[string]*domain.StreamerHistory)}
}

func (s *MemoryHistoryStore) Get(_ context.Context, streamerID string) (*domain.StreamerHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.docs[streamerID]
	if !ok {
		return nil, fmt.Errorf("history %s: %w", streamerID, domain.ErrNotFound)
	}
	return h.Clone(), nil
}

func (s *MemoryHistoryStore) Create(_ context.Context, h *domain.StreamerHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[h.StreamerID]; ok {
		return fmt.Errorf("insert %s: %w", h.StreamerID, domain.ErrConflict)
	}
	h.Version = 1
	s.docs[h.StreamerID] = h.Clone()
	return nil
}

func (s *MemoryHistoryStore) Save(_ context.Context, h *domain.StreamerHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[h.StreamerID]
	if !ok || current.Version != h.Version {
		return fmt.Errorf("replace %s at version %d: %w", h.StreamerID, h.Version, domain.ErrConflict)
	}
	h.Version++
	s.docs[h.StreamerID] = h.Clone()
	return nil
}
