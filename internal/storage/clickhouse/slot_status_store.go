package clickhouse

import (
	"context"
	"fmt"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// SlotStatusStore implements storage.SlotStatusStore using ClickHouse.
// Reconnect replay may insert the same (slot, status) twice; the
// ReplacingMergeTree engine folds those at merge time, so reads deduplicate
// with FINAL instead of rejecting inserts.
type SlotStatusStore struct {
	conn *Conn
}

// NewSlotStatusStore creates a new SlotStatusStore.
func NewSlotStatusStore(conn *Conn) *SlotStatusStore {
	return &SlotStatusStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SlotStatusStore = (*SlotStatusStore)(nil)

// InsertBulk adds multiple points.
func (s *SlotStatusStore) InsertBulk(ctx context.Context, points []*domain.SlotStatusPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO slot_status (
			slot, parent, status, dead_error, received_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.Slot, p.Parent, p.Status, p.DeadError, p.ReceivedAtMs,
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

// GetBySlot retrieves all status points recorded for a slot.
func (s *SlotStatusStore) GetBySlot(ctx context.Context, slot uint64) ([]*domain.SlotStatusPoint, error) {
	query := `
		SELECT slot, parent, status, dead_error, received_at_ms
		FROM slot_status FINAL
		WHERE slot = ?
		ORDER BY received_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, slot)
	if err != nil {
		return nil, fmt.Errorf("query by slot: %w", err)
	}
	defer rows.Close()

	return scanSlotStatus(rows)
}

// GetLatestFinalized returns the highest slot recorded as finalized.
func (s *SlotStatusStore) GetLatestFinalized(ctx context.Context) (uint64, error) {
	query := `
		SELECT max(slot) FROM slot_status
		WHERE status = ?
	`

	var slot uint64
	err := s.conn.QueryRow(ctx, query, domain.SlotStatusFinalized).Scan(&slot)
	if err != nil {
		return 0, fmt.Errorf("query latest finalized: %w", err)
	}
	if slot == 0 {
		return 0, storage.ErrNotFound
	}
	return slot, nil
}

// scanSlotStatus scans multiple rows.
func scanSlotStatus(rows chRows) ([]*domain.SlotStatusPoint, error) {
	var points []*domain.SlotStatusPoint

	for rows.Next() {
		var p domain.SlotStatusPoint

		err := rows.Scan(
			&p.Slot, &p.Parent, &p.Status, &p.DeadError, &p.ReceivedAtMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan slot status row: %w", err)
		}

		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slot status rows: %w", err)
	}

	return points, nil
}
