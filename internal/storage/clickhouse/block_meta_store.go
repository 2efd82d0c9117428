package clickhouse

import (
	"context"
	"fmt"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// BlockMetaStore implements storage.BlockMetaStore using ClickHouse.
type BlockMetaStore struct {
	conn *Conn
}

// NewBlockMetaStore creates a new BlockMetaStore.
func NewBlockMetaStore(conn *Conn) *BlockMetaStore {
	return &BlockMetaStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BlockMetaStore = (*BlockMetaStore)(nil)

// InsertBulk adds multiple points.
func (s *BlockMetaStore) InsertBulk(ctx context.Context, points []*domain.BlockMetaPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO block_meta (
			slot, blockhash, parent_slot, parent_blockhash, block_time,
			block_height, transaction_count, entry_count, received_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.Slot, p.Blockhash, p.ParentSlot, p.ParentBlockhash, p.BlockTime,
			p.BlockHeight, p.TransactionCount, p.EntryCount, p.ReceivedAtMs,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySlotRange retrieves points within [start, end] (inclusive).
func (s *BlockMetaStore) GetBySlotRange(ctx context.Context, start, end uint64) ([]*domain.BlockMetaPoint, error) {
	query := `
		SELECT slot, blockhash, parent_slot, parent_blockhash, block_time,
		       block_height, transaction_count, entry_count, received_at_ms
		FROM block_meta FINAL
		WHERE slot >= ? AND slot <= ?
		ORDER BY slot ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by slot range: %w", err)
	}
	defer rows.Close()

	var points []*domain.BlockMetaPoint
	for rows.Next() {
		var p domain.BlockMetaPoint

		err := rows.Scan(
			&p.Slot, &p.Blockhash, &p.ParentSlot, &p.ParentBlockhash, &p.BlockTime,
			&p.BlockHeight, &p.TransactionCount, &p.EntryCount, &p.ReceivedAtMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan block meta row: %w", err)
		}

		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate block meta rows: %w", err)
	}

	return points, nil
}
