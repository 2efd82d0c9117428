package memory

import (
	"context"
	"sort"
	"sync"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// BlockMetaStore is an in-memory implementation of storage.BlockMetaStore.
// Re-inserting an existing slot replaces the point.
type BlockMetaStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.BlockMetaPoint
}

// NewBlockMetaStore creates a new in-memory block meta store.
func NewBlockMetaStore() *BlockMetaStore {
	return &BlockMetaStore{
		data: make(map[uint64]*domain.BlockMetaPoint),
	}
}

// Compile-time interface check.
var _ storage.BlockMetaStore = (*BlockMetaStore)(nil)

// InsertBulk adds multiple points, replacing duplicates.
func (s *BlockMetaStore) InsertBulk(_ context.Context, points []*domain.BlockMetaPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if p == nil {
			return storage.ErrInvalidInput
		}
		copy := *p
		s.data[p.Slot] = &copy
	}

	return nil
}

// GetBySlotRange retrieves points within [start, end] (inclusive).
func (s *BlockMetaStore) GetBySlotRange(_ context.Context, start, end uint64) ([]*domain.BlockMetaPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BlockMetaPoint
	for slot, p := range s.data {
		if slot >= start && slot <= end {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot < result[j].Slot
	})

	return result, nil
}
