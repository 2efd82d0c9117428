package memory

import (
	"context"
	"sort"
	"sync"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// accountSnapshotKey is the composite key for snapshot deduplication.
type accountSnapshotKey struct {
	Pubkey       string
	Slot         uint64
	WriteVersion uint64
}

// AccountSnapshotStore is an in-memory implementation of storage.AccountSnapshotStore.
type AccountSnapshotStore struct {
	mu     sync.RWMutex
	data   []*domain.AccountSnapshot
	keys   map[accountSnapshotKey]bool
	nextID int64
}

// NewAccountSnapshotStore creates a new in-memory account snapshot store.
func NewAccountSnapshotStore() *AccountSnapshotStore {
	return &AccountSnapshotStore{
		data: make([]*domain.AccountSnapshot, 0),
		keys: make(map[accountSnapshotKey]bool),
	}
}

// Compile-time interface check.
var _ storage.AccountSnapshotStore = (*AccountSnapshotStore)(nil)

// Insert adds a new snapshot. Returns ErrDuplicateKey if (pubkey, slot, write_version) exists.
func (s *AccountSnapshotStore) Insert(_ context.Context, snap *domain.AccountSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(snap)
}

// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
func (s *AccountSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.AccountSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[accountSnapshotKey]bool)
	for _, snap := range snapshots {
		if snap == nil {
			return storage.ErrInvalidInput
		}
		key := accountSnapshotKey{snap.Pubkey, snap.Slot, snap.WriteVersion}
		if s.keys[key] || batchKeys[key] {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = true
	}

	for _, snap := range snapshots {
		if err := s.insertLocked(snap); err != nil {
			return err
		}
	}

	return nil
}

func (s *AccountSnapshotStore) insertLocked(snap *domain.AccountSnapshot) error {
	key := accountSnapshotKey{snap.Pubkey, snap.Slot, snap.WriteVersion}
	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	s.nextID++
	copy := *snap
	copy.ID = s.nextID
	s.data = append(s.data, &copy)
	s.keys[key] = true

	return nil
}

// GetLatest retrieves the highest-slot snapshot for a pubkey.
func (s *AccountSnapshotStore) GetLatest(_ context.Context, pubkey string) (*domain.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.AccountSnapshot
	for _, snap := range s.data {
		if snap.Pubkey != pubkey {
			continue
		}
		if latest == nil || snap.Slot > latest.Slot ||
			(snap.Slot == latest.Slot && snap.WriteVersion > latest.WriteVersion) {
			latest = snap
		}
	}

	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}

// GetByOwner retrieves the latest snapshot per account owned by owner.
func (s *AccountSnapshotStore) GetByOwner(_ context.Context, owner string) ([]*domain.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.AccountSnapshot)
	for _, snap := range s.data {
		if snap.Owner != owner {
			continue
		}
		cur, ok := latest[snap.Pubkey]
		if !ok || snap.Slot > cur.Slot ||
			(snap.Slot == cur.Slot && snap.WriteVersion > cur.WriteVersion) {
			latest[snap.Pubkey] = snap
		}
	}

	result := make([]*domain.AccountSnapshot, 0, len(latest))
	for _, snap := range latest {
		copy := *snap
		result = append(result, &copy)
	}

	// Sort for deterministic ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].Pubkey < result[j].Pubkey
	})

	return result, nil
}

// GetBySlotRange retrieves snapshots within [start, end] (inclusive).
func (s *AccountSnapshotStore) GetBySlotRange(_ context.Context, start, end uint64) ([]*domain.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AccountSnapshot
	for _, snap := range s.data {
		if snap.Slot >= start && snap.Slot <= end {
			copy := *snap
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		if result[i].Pubkey != result[j].Pubkey {
			return result[i].Pubkey < result[j].Pubkey
		}
		return result[i].WriteVersion < result[j].WriteVersion
	})

	return result, nil
}
