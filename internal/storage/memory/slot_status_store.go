package memory

import (
	"context"
	"sort"
	"sync"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// slotStatusKey mirrors the ClickHouse ReplacingMergeTree ordering key.
type slotStatusKey struct {
	Slot   uint64
	Status string
}

// SlotStatusStore is an in-memory implementation of storage.SlotStatusStore.
// Re-inserting an existing (slot, status) replaces the point, matching the
// ClickHouse engine semantics.
type SlotStatusStore struct {
	mu   sync.RWMutex
	data map[slotStatusKey]*domain.SlotStatusPoint
}

// NewSlotStatusStore creates a new in-memory slot status store.
func NewSlotStatusStore() *SlotStatusStore {
	return &SlotStatusStore{
		data: make(map[slotStatusKey]*domain.SlotStatusPoint),
	}
}

// Compile-time interface check.
var _ storage.SlotStatusStore = (*SlotStatusStore)(nil)

// InsertBulk adds multiple points, replacing duplicates.
func (s *SlotStatusStore) InsertBulk(_ context.Context, points []*domain.SlotStatusPoint) error {
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
		s.data[slotStatusKey{p.Slot, p.Status}] = &copy
	}

	return nil
}

// GetBySlot retrieves all status points recorded for a slot.
func (s *SlotStatusStore) GetBySlot(_ context.Context, slot uint64) ([]*domain.SlotStatusPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SlotStatusPoint
	for key, p := range s.data {
		if key.Slot == slot {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAtMs < result[j].ReceivedAtMs
	})

	return result, nil
}

// GetLatestFinalized returns the highest slot recorded as finalized.
func (s *SlotStatusStore) GetLatestFinalized(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best uint64
	var found bool
	for key := range s.data {
		if key.Status == domain.SlotStatusFinalized && key.Slot >= best {
			best = key.Slot
			found = true
		}
	}

	if !found {
		return 0, storage.ErrNotFound
	}
	return best, nil
}
