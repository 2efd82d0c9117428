package domain

// IngestCursor tracks the highest fully processed slot per ingestion stream.
// Corresponds to ingest_cursors table in PostgreSQL. On restart the stream
// resumes from Slot via the subscription's replay offset.
type IngestCursor struct {
	StreamID  string // logical stream name, e.g. "mainnet-accounts"
	Slot      uint64 // highest slot durably processed
	UpdatedAt int64  // last checkpoint timestamp (ms)
}
