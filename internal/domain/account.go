package domain

// AccountSnapshot represents one observed account write from the stream.
// Corresponds to account_snapshots table in PostgreSQL.
type AccountSnapshot struct {
	ID           int64   // BIGSERIAL primary key
	Pubkey       string  // account address, base58
	Owner        string  // owning program, base58
	Lamports     uint64  // balance at the time of the write
	Data         []byte  // account data, possibly sliced by the subscription
	Executable   bool    // program account flag
	RentEpoch    uint64  // next rent collection epoch
	WriteVersion uint64  // monotonic per-account write counter
	TxnSignature *string // writing transaction signature (nullable)
	OnCurve      bool    // true for wallet keys, false for PDAs
	Slot         uint64  // Solana slot of the write
	IsStartup    bool    // snapshot replay during node startup
	ReceivedAtMs int64   // client receive timestamp (ms)
	CreatedAt    int64   // record creation timestamp (ms)
}
