package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/geyser"
	"solana-geyser-stream/internal/observability"
	"solana-geyser-stream/internal/storage"
)

// Runner defaults.
const (
	DefaultBatchSize     = 256
	DefaultFlushInterval = 5 * time.Second
)

// Runner drains a stream of classified updates into storage. Account and
// transaction updates are written row by row so duplicates from reconnect
// replay can be skipped individually; slot and block metadata points are
// batched for the columnar store and flushed on size or interval. The resume
// cursor advances on every flush.
type Runner struct {
	updates      <-chan geyser.Update
	accounts     storage.AccountSnapshotStore
	transactions storage.TransactionEventStore
	slots        storage.SlotStatusStore
	blockMeta    storage.BlockMetaStore
	cursors      storage.CursorStore

	streamID      string
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger

	slotBatch  []*domain.SlotStatusPoint
	blockBatch []*domain.BlockMetaPoint

	highestSlot uint64
	stored      uint64
}

// RunnerOptions contains configuration for creating a Runner. Any nil store
// disables persistence for that update kind.
type RunnerOptions struct {
	Updates      <-chan geyser.Update
	Accounts     storage.AccountSnapshotStore
	Transactions storage.TransactionEventStore
	Slots        storage.SlotStatusStore
	BlockMeta    storage.BlockMetaStore
	Cursors      storage.CursorStore

	// StreamID names the resume cursor row. Required when Cursors is set.
	StreamID string

	// BatchSize caps the columnar batches. Default 256.
	BatchSize int

	// FlushInterval forces a flush of partial batches. Default 5s.
	FlushInterval time.Duration

	Logger *zap.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}

	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = DefaultFlushInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		updates:       opts.Updates,
		accounts:      opts.Accounts,
		transactions:  opts.Transactions,
		slots:         opts.Slots,
		blockMeta:     opts.BlockMeta,
		cursors:       opts.Cursors,
		streamID:      opts.StreamID,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// ResumeSlot loads the stored cursor and returns the slot to resume the
// subscription from. Returns 0, false when no cursor exists yet.
func (r *Runner) ResumeSlot(ctx context.Context) (uint64, bool, error) {
	if r.cursors == nil || r.streamID == "" {
		return 0, false, nil
	}

	cur, err := r.cursors.Load(ctx, r.streamID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("load cursor: %w", err)
	}
	return cur.Slot, true, nil
}

// Run drains the update stream until the context is cancelled or the stream
// closes. Remaining batches are flushed before returning.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("ingestion runner starting",
		zap.String("stream", r.streamID),
		zap.Int("batch_size", r.batchSize),
		zap.Duration("flush_interval", r.flushInterval))

	flushTicker := time.NewTicker(r.flushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			r.logger.Info("ingestion runner stopping", zap.Uint64("stored", r.stored))
			return ctx.Err()

		case u, ok := <-r.updates:
			if !ok {
				r.flush(context.WithoutCancel(ctx))
				r.logger.Info("update stream closed", zap.Uint64("stored", r.stored))
				return nil
			}
			r.handle(ctx, u)

		case <-flushTicker.C:
			r.flush(ctx)
		}
	}
}

func (r *Runner) handle(ctx context.Context, u geyser.Update) {
	if u.Slot > r.highestSlot {
		r.highestSlot = u.Slot
		observability.UpdateHighestSlot(u.Slot)
	}

	switch u.Kind {
	case geyser.KindAccount:
		r.storeAccount(ctx, u)
	case geyser.KindTransaction:
		r.storeTransaction(ctx, u)
	case geyser.KindSlot:
		if r.slots != nil {
			r.slotBatch = append(r.slotBatch, toSlotStatusPoint(u))
		}
	case geyser.KindBlockMeta:
		if r.blockMeta != nil {
			r.blockBatch = append(r.blockBatch, toBlockMetaPoint(u))
		}
	case geyser.KindBlock:
		r.storeBlock(ctx, u)
	default:
		// Entries and unknown kinds are not persisted.
	}

	if len(r.slotBatch) >= r.batchSize || len(r.blockBatch) >= r.batchSize {
		r.flush(ctx)
	}
}

func (r *Runner) storeAccount(ctx context.Context, u geyser.Update) {
	if r.accounts == nil {
		return
	}

	err := r.accounts.Insert(ctx, toAccountSnapshot(u, time.Now().UnixMilli()))
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Expected during reconnect replay.
			return
		}
		r.logger.Error("store account snapshot failed", zap.Error(err))
		observability.RecordUpdateError("account", "store")
		return
	}

	r.stored++
	observability.RecordUpdateStored("account")
}

func (r *Runner) storeTransaction(ctx context.Context, u geyser.Update) {
	if r.transactions == nil {
		return
	}

	err := r.transactions.Insert(ctx, toTransactionEvent(u, time.Now().UnixMilli()))
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return
		}
		r.logger.Error("store transaction event failed", zap.Error(err))
		observability.RecordUpdateError("transaction", "store")
		return
	}

	r.stored++
	observability.RecordUpdateStored("transaction")
}

// storeBlock unpacks an inlined full block into its constituent records.
func (r *Runner) storeBlock(ctx context.Context, u geyser.Update) {
	b := u.Block
	if b == nil {
		return
	}

	if r.blockMeta != nil {
		r.blockBatch = append(r.blockBatch, &domain.BlockMetaPoint{
			Slot:             b.Slot,
			Blockhash:        b.Blockhash,
			ParentSlot:       b.ParentSlot,
			ParentBlockhash:  b.ParentBlockhash,
			BlockTime:        b.BlockTime,
			BlockHeight:      b.BlockHeight,
			TransactionCount: b.ExecutedTransactionCount,
			EntryCount:       b.EntriesCount,
			ReceivedAtMs:     u.ReceivedAt.UnixMilli(),
		})
	}

	for i := range b.Transactions {
		tx := u
		tx.Kind = geyser.KindTransaction
		tx.Transaction = &b.Transactions[i]
		r.storeTransaction(ctx, tx)
	}
	for i := range b.Accounts {
		acc := u
		acc.Kind = geyser.KindAccount
		acc.Account = &b.Accounts[i]
		r.storeAccount(ctx, acc)
	}
}

// flush writes out the columnar batches and checkpoints the cursor. A batch
// that fails to insert is retained for the next flush, and the cursor is not
// advanced: the checkpoint must never claim slots whose rows were lost, or a
// restart would resume past them permanently.
func (r *Runner) flush(ctx context.Context) {
	flushed := true

	if len(r.slotBatch) > 0 && r.slots != nil {
		if err := r.slots.InsertBulk(ctx, r.slotBatch); err != nil {
			r.logger.Error("flush slot status batch failed",
				zap.Int("points", len(r.slotBatch)), zap.Error(err))
			observability.RecordUpdateError("slot", "flush")
			flushed = false
		} else {
			r.stored += uint64(len(r.slotBatch))
			observability.RecordUpdatesStored("slot", len(r.slotBatch))
			r.slotBatch = r.slotBatch[:0]
		}
	}

	if len(r.blockBatch) > 0 && r.blockMeta != nil {
		if err := r.blockMeta.InsertBulk(ctx, r.blockBatch); err != nil {
			r.logger.Error("flush block meta batch failed",
				zap.Int("points", len(r.blockBatch)), zap.Error(err))
			observability.RecordUpdateError("blockMeta", "flush")
			flushed = false
		} else {
			r.stored += uint64(len(r.blockBatch))
			observability.RecordUpdatesStored("blockMeta", len(r.blockBatch))
			r.blockBatch = r.blockBatch[:0]
		}
	}

	if flushed {
		r.checkpoint(ctx)
	}
}

func (r *Runner) checkpoint(ctx context.Context) {
	if r.cursors == nil || r.streamID == "" || r.highestSlot == 0 {
		return
	}

	err := r.cursors.Save(ctx, &domain.IngestCursor{
		StreamID:  r.streamID,
		Slot:      r.highestSlot,
		UpdatedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		r.logger.Error("save cursor failed", zap.Error(err))
	}
}
