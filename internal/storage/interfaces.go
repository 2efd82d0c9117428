package storage

import (
	"context"

	"solana-geyser-stream/internal/domain"
)

// AccountSnapshotStore provides access to account_snapshots storage.
type AccountSnapshotStore interface {
	// Insert adds a new snapshot. Returns ErrDuplicateKey if
	// (pubkey, slot, write_version) exists.
	Insert(ctx context.Context, s *domain.AccountSnapshot) error

	// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, snapshots []*domain.AccountSnapshot) error

	// GetLatest retrieves the highest-slot snapshot for a pubkey. Returns ErrNotFound if not exists.
	GetLatest(ctx context.Context, pubkey string) (*domain.AccountSnapshot, error)

	// GetByOwner retrieves the latest snapshot per account owned by owner.
	GetByOwner(ctx context.Context, owner string) ([]*domain.AccountSnapshot, error)

	// GetBySlotRange retrieves snapshots within [start, end] (inclusive), ordered by slot ASC.
	GetBySlotRange(ctx context.Context, start, end uint64) ([]*domain.AccountSnapshot, error)
}

// TransactionEventStore provides access to transaction_events storage.
type TransactionEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if (signature, slot) exists.
	Insert(ctx context.Context, e *domain.TransactionEvent) error

	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, events []*domain.TransactionEvent) error

	// GetBySignature retrieves an event by signature. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.TransactionEvent, error)

	// GetBySlotRange retrieves events within [start, end] (inclusive), ordered by slot, index ASC.
	GetBySlotRange(ctx context.Context, start, end uint64) ([]*domain.TransactionEvent, error)
}

// SlotStatusStore provides access to slot_status storage.
type SlotStatusStore interface {
	// InsertBulk adds multiple points. Duplicates are deduplicated by the engine, not rejected.
	InsertBulk(ctx context.Context, points []*domain.SlotStatusPoint) error

	// GetBySlot retrieves all status points recorded for a slot, ordered by receive time ASC.
	GetBySlot(ctx context.Context, slot uint64) ([]*domain.SlotStatusPoint, error)

	// GetLatestFinalized returns the highest slot recorded as finalized. Returns ErrNotFound if none.
	GetLatestFinalized(ctx context.Context) (uint64, error)
}

// BlockMetaStore provides access to block_meta storage.
type BlockMetaStore interface {
	// InsertBulk adds multiple points. Duplicates are deduplicated by the engine, not rejected.
	InsertBulk(ctx context.Context, points []*domain.BlockMetaPoint) error

	// GetBySlotRange retrieves points within [start, end] (inclusive), ordered by slot ASC.
	GetBySlotRange(ctx context.Context, start, end uint64) ([]*domain.BlockMetaPoint, error)
}

// CursorStore provides access to ingest_cursors storage.
type CursorStore interface {
	// Save upserts the cursor for a stream.
	Save(ctx context.Context, c *domain.IngestCursor) error

	// Load retrieves the cursor for a stream. Returns ErrNotFound if not exists.
	Load(ctx context.Context, streamID string) (*domain.IngestCursor, error)
}
