package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

// AccountSnapshotStore implements storage.AccountSnapshotStore using PostgreSQL.
type AccountSnapshotStore struct {
	pool *Pool
}

// NewAccountSnapshotStore creates a new AccountSnapshotStore.
func NewAccountSnapshotStore(pool *Pool) *AccountSnapshotStore {
	return &AccountSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountSnapshotStore = (*AccountSnapshotStore)(nil)

const insertAccountSnapshotQuery = `
	INSERT INTO account_snapshots (
		pubkey, owner, lamports, data, executable, rent_epoch,
		write_version, txn_signature, on_curve, slot, is_startup,
		received_at_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

const selectAccountSnapshotColumns = `
	id, pubkey, owner, lamports, data, executable, rent_epoch,
	write_version, txn_signature, on_curve, slot, is_startup,
	received_at_ms, created_at
`

// Insert adds a new snapshot. Returns ErrDuplicateKey if (pubkey, slot, write_version) exists.
func (s *AccountSnapshotStore) Insert(ctx context.Context, snap *domain.AccountSnapshot) error {
	_, err := s.pool.Exec(ctx, insertAccountSnapshotQuery, accountSnapshotArgs(snap)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account snapshot: %w", err)
	}
	return nil
}

// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
func (s *AccountSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.AccountSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, snap := range snapshots {
		if _, err := tx.Exec(ctx, insertAccountSnapshotQuery, accountSnapshotArgs(snap)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert account snapshot in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetLatest retrieves the highest-slot snapshot for a pubkey, breaking slot
// ties by write version.
func (s *AccountSnapshotStore) GetLatest(ctx context.Context, pubkey string) (*domain.AccountSnapshot, error) {
	query := `
		SELECT ` + selectAccountSnapshotColumns + `
		FROM account_snapshots
		WHERE pubkey = $1
		ORDER BY slot DESC, write_version DESC
		LIMIT 1
	`

	var snap domain.AccountSnapshot
	if err := scanAccountSnapshot(s.pool.QueryRow(ctx, query, pubkey), &snap); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest account snapshot: %w", err)
	}
	return &snap, nil
}

// GetByOwner retrieves the latest snapshot per account owned by owner.
func (s *AccountSnapshotStore) GetByOwner(ctx context.Context, owner string) ([]*domain.AccountSnapshot, error) {
	query := `
		SELECT DISTINCT ON (pubkey) ` + selectAccountSnapshotColumns + `
		FROM account_snapshots
		WHERE owner = $1
		ORDER BY pubkey ASC, slot DESC, write_version DESC
	`

	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("get account snapshots by owner: %w", err)
	}
	defer rows.Close()

	return scanAccountSnapshots(rows)
}

// GetBySlotRange retrieves snapshots within [start, end] (inclusive).
func (s *AccountSnapshotStore) GetBySlotRange(ctx context.Context, start, end uint64) ([]*domain.AccountSnapshot, error) {
	query := `
		SELECT ` + selectAccountSnapshotColumns + `
		FROM account_snapshots
		WHERE slot >= $1 AND slot <= $2
		ORDER BY slot ASC, pubkey ASC, write_version ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get account snapshots by slot range: %w", err)
	}
	defer rows.Close()

	return scanAccountSnapshots(rows)
}

func accountSnapshotArgs(snap *domain.AccountSnapshot) []interface{} {
	return []interface{}{
		snap.Pubkey,
		snap.Owner,
		int64(snap.Lamports),
		snap.Data,
		snap.Executable,
		int64(snap.RentEpoch),
		int64(snap.WriteVersion),
		snap.TxnSignature,
		snap.OnCurve,
		int64(snap.Slot),
		snap.IsStartup,
		snap.ReceivedAtMs,
		snap.CreatedAt,
	}
}

func scanAccountSnapshot(row pgx.Row, snap *domain.AccountSnapshot) error {
	var lamports, rentEpoch, writeVersion, slot int64
	err := row.Scan(
		&snap.ID,
		&snap.Pubkey,
		&snap.Owner,
		&lamports,
		&snap.Data,
		&snap.Executable,
		&rentEpoch,
		&writeVersion,
		&snap.TxnSignature,
		&snap.OnCurve,
		&slot,
		&snap.IsStartup,
		&snap.ReceivedAtMs,
		&snap.CreatedAt,
	)
	if err != nil {
		return err
	}
	snap.Lamports = uint64(lamports)
	snap.RentEpoch = uint64(rentEpoch)
	snap.WriteVersion = uint64(writeVersion)
	snap.Slot = uint64(slot)
	return nil
}

// scanAccountSnapshots scans multiple rows into a slice of AccountSnapshot.
func scanAccountSnapshots(rows pgx.Rows) ([]*domain.AccountSnapshot, error) {
	var snapshots []*domain.AccountSnapshot

	for rows.Next() {
		var snap domain.AccountSnapshot
		if err := scanAccountSnapshot(rows, &snap); err != nil {
			return nil, fmt.Errorf("scan account snapshot row: %w", err)
		}
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account snapshot rows: %w", err)
	}

	return snapshots, nil
}
