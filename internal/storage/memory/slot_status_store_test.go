package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/storage"
)

func TestSlotStatusStore_InsertBulkAndGetBySlot(t *testing.T) {
	ctx := context.Background()
	store := NewSlotStatusStore()

	require.NoError(t, store.InsertBulk(ctx, []*domain.SlotStatusPoint{
		{Slot: 100, Parent: 99, Status: domain.SlotStatusProcessed, ReceivedAtMs: 1},
		{Slot: 100, Parent: 99, Status: domain.SlotStatusConfirmed, ReceivedAtMs: 2},
		{Slot: 101, Parent: 100, Status: domain.SlotStatusProcessed, ReceivedAtMs: 3},
	}))

	got, err := store.GetBySlot(ctx, 100)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, domain.SlotStatusProcessed, got[0].Status)
	assert.Equal(t, domain.SlotStatusConfirmed, got[1].Status)
}

func TestSlotStatusStore_ReplayReplacesInsteadOfDuplicating(t *testing.T) {
	ctx := context.Background()
	store := NewSlotStatusStore()

	point := &domain.SlotStatusPoint{Slot: 100, Status: domain.SlotStatusProcessed, ReceivedAtMs: 1}
	require.NoError(t, store.InsertBulk(ctx, []*domain.SlotStatusPoint{point}))

	// Reconnect replay delivers the same point again.
	point.ReceivedAtMs = 2
	require.NoError(t, store.InsertBulk(ctx, []*domain.SlotStatusPoint{point}))

	got, err := store.GetBySlot(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ReceivedAtMs)
}

func TestSlotStatusStore_GetLatestFinalized(t *testing.T) {
	ctx := context.Background()
	store := NewSlotStatusStore()

	_, err := store.GetLatestFinalized(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.InsertBulk(ctx, []*domain.SlotStatusPoint{
		{Slot: 100, Status: domain.SlotStatusFinalized, ReceivedAtMs: 1},
		{Slot: 102, Status: domain.SlotStatusFinalized, ReceivedAtMs: 2},
		{Slot: 105, Status: domain.SlotStatusConfirmed, ReceivedAtMs: 3},
	}))

	slot, err := store.GetLatestFinalized(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(102), slot)
}
