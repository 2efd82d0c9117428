package memory

import (
	"context"
	"sort"
	"sync"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// transactionEventKey is the composite key for event deduplication.
type transactionEventKey struct {
	Signature string
	Slot      uint64
}

// TransactionEventStore is an in-memory implementation of storage.TransactionEventStore.
type TransactionEventStore struct {
	mu     sync.RWMutex
	data   []*domain.TransactionEvent
	keys   map[transactionEventKey]bool
	nextID int64
}

// NewTransactionEventStore creates a new in-memory transaction event store.
func NewTransactionEventStore() *TransactionEventStore {
	return &TransactionEventStore{
		data: make([]*domain.TransactionEvent, 0),
		keys: make(map[transactionEventKey]bool),
	}
}

// Compile-time interface check.
var _ storage.TransactionEventStore = (*TransactionEventStore)(nil)

// Insert adds a new event. Returns ErrDuplicateKey if (signature, slot) exists.
func (s *TransactionEventStore) Insert(_ context.Context, e *domain.TransactionEvent) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(e)
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *TransactionEventStore) InsertBulk(_ context.Context, events []*domain.TransactionEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[transactionEventKey]bool)
	for _, e := range events {
		if e == nil {
			return storage.ErrInvalidInput
		}
		key := transactionEventKey{e.Signature, e.Slot}
		if s.keys[key] || batchKeys[key] {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = true
	}

	for _, e := range events {
		if err := s.insertLocked(e); err != nil {
			return err
		}
	}

	return nil
}

func (s *TransactionEventStore) insertLocked(e *domain.TransactionEvent) error {
	key := transactionEventKey{e.Signature, e.Slot}
	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	s.nextID++
	copy := *e
	copy.ID = s.nextID
	s.data = append(s.data, &copy)
	s.keys[key] = true

	return nil
}

// GetBySignature retrieves an event by signature.
func (s *TransactionEventStore) GetBySignature(_ context.Context, signature string) (*domain.TransactionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.data {
		if e.Signature == signature {
			copy := *e
			return &copy, nil
		}
	}

	return nil, storage.ErrNotFound
}

// GetBySlotRange retrieves events within [start, end] (inclusive).
func (s *TransactionEventStore) GetBySlotRange(_ context.Context, start, end uint64) ([]*domain.TransactionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransactionEvent
	for _, e := range s.data {
		if e.Slot >= start && e.Slot <= end {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].Index < result[j].Index
	})

	return result, nil
}
