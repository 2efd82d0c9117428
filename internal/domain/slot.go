package domain

// SlotStatusPoint represents one slot progression notification.
// Corresponds to slot_status table in ClickHouse.
type SlotStatusPoint struct {
	Slot         uint64 // Solana slot number
	Parent       uint64 // parent slot
	Status       string // processed | confirmed | finalized | dead
	DeadError    string // failure reason when status is dead
	ReceivedAtMs int64  // client receive timestamp (ms)
}

// Slot status constants as sent on the wire.
const (
	SlotStatusProcessed = "processed"
	SlotStatusConfirmed = "confirmed"
	SlotStatusFinalized = "finalized"
	SlotStatusDead      = "dead"
)
