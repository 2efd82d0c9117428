package domain

// TransactionEvent represents one processed transaction notification.
// Corresponds to transaction_events table in PostgreSQL.
type TransactionEvent struct {
	ID           int64  // BIGSERIAL primary key
	Signature    string // transaction signature, base58
	Slot         uint64 // Solana slot the transaction landed in
	Index        uint64 // position within the block
	IsVote       bool   // consensus vote transaction
	Failed       bool   // execution failed on chain
	Raw          []byte // undecoded transaction blob
	ReceivedAtMs int64  // client receive timestamp (ms)
	CreatedAt    int64  // record creation timestamp (ms)
}
