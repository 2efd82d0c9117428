package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore. One row
// per logical stream; restarts read the row back to resume from the recorded
// slot.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new PostgreSQL cursor store.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// Save upserts the cursor for a stream.
func (s *CursorStore) Save(ctx context.Context, c *domain.IngestCursor) error {
	if c == nil || c.StreamID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_cursors (stream_id, slot, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (stream_id) DO UPDATE
		SET slot = EXCLUDED.slot,
		    updated_at = EXCLUDED.updated_at
	`, c.StreamID, int64(c.Slot), c.UpdatedAt)

	return err
}

// Load retrieves the cursor for a stream.
func (s *CursorStore) Load(ctx context.Context, streamID string) (*domain.IngestCursor, error) {
	if streamID == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT stream_id, slot, updated_at
		FROM ingest_cursors
		WHERE stream_id = $1
	`, streamID)

	var c domain.IngestCursor
	var slot int64
	err := row.Scan(&c.StreamID, &slot, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	c.Slot = uint64(slot)

	return &c, nil
}
