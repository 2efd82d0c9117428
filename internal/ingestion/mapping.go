package ingestion

import (
	"solana-geyser-stream/internal/domain"
	"solana-geyser-stream/internal/geyser"
)

// toAccountSnapshot converts an account update into its storage record. The
// wallet-vs-PDA flag is derived here so queries never need to redo the curve
// check.
func toAccountSnapshot(u geyser.Update, nowMs int64) *domain.AccountSnapshot {
	a := u.Account

	var sig *string
	if a.TxnSignature != "" {
		s := a.TxnSignature
		sig = &s
	}

	return &domain.AccountSnapshot{
		Pubkey:       a.Pubkey,
		Owner:        a.Owner,
		Lamports:     a.Lamports,
		Data:         a.Data,
		Executable:   a.Executable,
		RentEpoch:    a.RentEpoch,
		WriteVersion: a.WriteVersion,
		TxnSignature: sig,
		OnCurve:      geyser.IsOnCurve(a.Pubkey),
		Slot:         u.Slot,
		IsStartup:    a.IsStartup,
		ReceivedAtMs: u.ReceivedAt.UnixMilli(),
		CreatedAt:    nowMs,
	}
}

func toTransactionEvent(u geyser.Update, nowMs int64) *domain.TransactionEvent {
	t := u.Transaction

	return &domain.TransactionEvent{
		Signature:    t.Signature,
		Slot:         u.Slot,
		Index:        t.Index,
		IsVote:       t.IsVote,
		Failed:       t.Failed,
		Raw:          t.Raw,
		ReceivedAtMs: u.ReceivedAt.UnixMilli(),
		CreatedAt:    nowMs,
	}
}

func toSlotStatusPoint(u geyser.Update) *domain.SlotStatusPoint {
	s := u.SlotStatus

	return &domain.SlotStatusPoint{
		Slot:         s.Slot,
		Parent:       s.Parent,
		Status:       s.Status,
		DeadError:    s.DeadError,
		ReceivedAtMs: u.ReceivedAt.UnixMilli(),
	}
}

func toBlockMetaPoint(u geyser.Update) *domain.BlockMetaPoint {
	b := u.BlockMeta

	return &domain.BlockMetaPoint{
		Slot:             b.Slot,
		Blockhash:        b.Blockhash,
		ParentSlot:       b.ParentSlot,
		ParentBlockhash:  b.ParentBlockhash,
		BlockTime:        b.BlockTime,
		BlockHeight:      b.BlockHeight,
		TransactionCount: b.ExecutedTransactionCount,
		EntryCount:       b.EntriesCount,
		ReceivedAtMs:     u.ReceivedAt.UnixMilli(),
	}
}
