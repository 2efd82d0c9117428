package memory

import (
	"context"
	"sync"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu   sync.RWMutex
	data map[string]*domain.IngestCursor
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		data: make(map[string]*domain.IngestCursor),
	}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Save upserts the cursor for a stream.
func (s *CursorStore) Save(_ context.Context, c *domain.IngestCursor) error {
	if c == nil || c.StreamID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *c
	s.data[c.StreamID] = &copy

	return nil
}

// Load retrieves the cursor for a stream.
func (s *CursorStore) Load(_ context.Context, streamID string) (*domain.IngestCursor, error) {
	if streamID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[streamID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	copy := *c
	return &copy, nil
}
