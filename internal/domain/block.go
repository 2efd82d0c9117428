package domain

// BlockMetaPoint represents one block metadata notification.
// Corresponds to block_meta table in ClickHouse.
type BlockMetaPoint struct {
	Slot             uint64 // Solana slot of the block
	Blockhash        string // block hash, base58
	ParentSlot       uint64 // parent slot
	ParentBlockhash  string // parent block hash, base58
	BlockTime        int64  // validator-reported unix time (s)
	BlockHeight      uint64 // block height
	TransactionCount uint64 // executed transactions in the block
	EntryCount       uint64 // ledger entries in the block
	ReceivedAtMs     int64  // client receive timestamp (ms)
}
