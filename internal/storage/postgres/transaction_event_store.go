package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// TransactionEventStore implements storage.TransactionEventStore using PostgreSQL.
type TransactionEventStore struct {
	pool *Pool
}

// NewTransactionEventStore creates a new TransactionEventStore.
func NewTransactionEventStore(pool *Pool) *TransactionEventStore {
	return &TransactionEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionEventStore = (*TransactionEventStore)(nil)

const insertTransactionEventQuery = `
	INSERT INTO transaction_events (
		signature, slot, tx_index, is_vote, failed, raw, received_at_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// Insert adds a new event. Returns ErrDuplicateKey if (signature, slot) exists.
func (s *TransactionEventStore) Insert(ctx context.Context, e *domain.TransactionEvent) error {
	_, err := s.pool.Exec(ctx, insertTransactionEventQuery, transactionEventArgs(e)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *TransactionEventStore) InsertBulk(ctx context.Context, events []*domain.TransactionEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		if _, err := tx.Exec(ctx, insertTransactionEventQuery, transactionEventArgs(e)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert transaction event in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetBySignature retrieves an event by signature.
func (s *TransactionEventStore) GetBySignature(ctx context.Context, signature string) (*domain.TransactionEvent, error) {
	query := `
		SELECT id, signature, slot, tx_index, is_vote, failed, raw, received_at_ms, created_at
		FROM transaction_events
		WHERE signature = $1
		LIMIT 1
	`

	var e domain.TransactionEvent
	if err := scanTransactionEvent(s.pool.QueryRow(ctx, query, signature), &e); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction event by signature: %w", err)
	}
	return &e, nil
}

// GetBySlotRange retrieves events within [start, end] (inclusive).
func (s *TransactionEventStore) GetBySlotRange(ctx context.Context, start, end uint64) ([]*domain.TransactionEvent, error) {
	query := `
		SELECT id, signature, slot, tx_index, is_vote, failed, raw, received_at_ms, created_at
		FROM transaction_events
		WHERE slot >= $1 AND slot <= $2
		ORDER BY slot ASC, tx_index ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get transaction events by slot range: %w", err)
	}
	defer rows.Close()

	var events []*domain.TransactionEvent
	for rows.Next() {
		var e domain.TransactionEvent
		if err := scanTransactionEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scan transaction event row: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction event rows: %w", err)
	}

	return events, nil
}

func transactionEventArgs(e *domain.TransactionEvent) []interface{} {
	return []interface{}{
		e.Signature,
		int64(e.Slot),
		int64(e.Index),
		e.IsVote,
		e.Failed,
		e.Raw,
		e.ReceivedAtMs,
		e.CreatedAt,
	}
}

func scanTransactionEvent(row pgx.Row, e *domain.TransactionEvent) error {
	var slot, index int64
	err := row.Scan(
		&e.ID,
		&e.Signature,
		&slot,
		&index,
		&e.IsVote,
		&e.Failed,
		&e.Raw,
		&e.ReceivedAtMs,
		&e.CreatedAt,
	)
	if err != nil {
		return err
	}
	e.Slot = uint64(slot)
	e.Index = uint64(index)
	return nil
}
