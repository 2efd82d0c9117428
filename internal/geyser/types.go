// Package geyser implements a persistent client for a Solana Geyser-style
// update streaming service: one duplex connection carrying a tagged-union
// stream of ledger updates, with commitment-aware filtering, automatic
// reconnect and bounded backpressure toward the consumer.
package geyser

import (
	"encoding/json"
	"fmt"
	"time"
)

// CommitmentLevel is the finality tier requested for streamed data.
type CommitmentLevel int

const (
	CommitmentProcessed CommitmentLevel = iota
	CommitmentConfirmed
	CommitmentFinalized
)

// String returns the wire name of the commitment level.
func (c CommitmentLevel) String() string {
	switch c {
	case CommitmentProcessed:
		return "processed"
	case CommitmentConfirmed:
		return "confirmed"
	case CommitmentFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("commitment(%d)", int(c))
	}
}

// ParseCommitment converts a wire name into a CommitmentLevel.
func ParseCommitment(s string) (CommitmentLevel, error) {
	switch s {
	case "processed":
		return CommitmentProcessed, nil
	case "confirmed":
		return CommitmentConfirmed, nil
	case "finalized":
		return CommitmentFinalized, nil
	default:
		return 0, &ValidationError{Field: "commitment", Reason: fmt.Sprintf("unknown level %q", s)}
	}
}

// MarshalJSON encodes the commitment level as its wire name.
func (c CommitmentLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a commitment level from its wire name.
func (c *CommitmentLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseCommitment(s)
	if err != nil {
		return err
	}
	*c = level
	return nil
}

// UpdateKind discriminates the variants of the update tagged union.
type UpdateKind int

const (
	KindUnknown UpdateKind = iota
	KindAccount
	KindTransaction
	KindSlot
	KindBlock
	KindBlockMeta
	KindEntry
	KindPing
	KindPong
)

// String returns the wire discriminant for the kind.
func (k UpdateKind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindTransaction:
		return "transaction"
	case KindSlot:
		return "slot"
	case KindBlock:
		return "block"
	case KindBlockMeta:
		return "blockMeta"
	case KindEntry:
		return "entry"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Update is one classified message from the stream. Exactly one payload
// pointer matching Kind is non-nil; Unknown carries only Err. Updates are
// transient: produced per frame, handed to the consumer, never retained.
type Update struct {
	Kind       UpdateKind
	Slot       uint64
	ReceivedAt time.Time
	// Filters lists the names of the subscription filters the server
	// matched this update against.
	Filters []string

	Account     *AccountUpdate
	Transaction *TransactionUpdate
	SlotStatus  *SlotUpdate
	Block       *BlockUpdate
	BlockMeta   *BlockMetaUpdate
	Entry       *EntryUpdate
	Ping        *PingUpdate
	Pong        *PongUpdate

	// Err holds the ProtocolError that made this update Unknown.
	Err error
}

// AccountUpdate is the payload of an account change notification.
type AccountUpdate struct {
	Pubkey       string `json:"pubkey"`
	Owner        string `json:"owner"`
	Lamports     uint64 `json:"lamports"`
	Data         []byte `json:"data,omitempty"`
	Executable   bool   `json:"executable"`
	RentEpoch    uint64 `json:"rentEpoch"`
	WriteVersion uint64 `json:"writeVersion"`
	TxnSignature string `json:"txnSignature,omitempty"`
	IsStartup    bool   `json:"isStartup"`
}

// TransactionUpdate is the payload of a processed transaction notification.
// Raw carries the undecoded transaction blob; the client does not interpret
// execution results.
type TransactionUpdate struct {
	Signature string `json:"signature"`
	IsVote    bool   `json:"isVote"`
	Failed    bool   `json:"failed"`
	Index     uint64 `json:"index"`
	Raw       []byte `json:"raw,omitempty"`
}

// SlotUpdate is the payload of a slot progression notification.
type SlotUpdate struct {
	Slot      uint64 `json:"slot"`
	Parent    uint64 `json:"parent"`
	Status    string `json:"status"`
	DeadError string `json:"deadError,omitempty"`
}

// BlockMetaUpdate is the payload of a block metadata notification.
type BlockMetaUpdate struct {
	Slot                     uint64 `json:"slot"`
	Blockhash                string `json:"blockhash"`
	ParentSlot               uint64 `json:"parentSlot"`
	ParentBlockhash          string `json:"parentBlockhash"`
	BlockTime                int64  `json:"blockTime"`
	BlockHeight              uint64 `json:"blockHeight"`
	ExecutedTransactionCount uint64 `json:"executedTransactionCount"`
	EntriesCount             uint64 `json:"entriesCount"`
}

// EntryUpdate is the payload of a ledger entry notification.
type EntryUpdate struct {
	Slot                     uint64 `json:"slot"`
	Index                    uint64 `json:"index"`
	NumHashes                uint64 `json:"numHashes"`
	Hash                     []byte `json:"hash,omitempty"`
	ExecutedTransactionCount uint64 `json:"executedTransactionCount"`
}

// BlockUpdate is the payload of a full block notification. Depending on the
// block filter it may inline transactions, accounts and entries.
type BlockUpdate struct {
	Slot                     uint64              `json:"slot"`
	Blockhash                string              `json:"blockhash"`
	ParentSlot               uint64              `json:"parentSlot"`
	ParentBlockhash          string              `json:"parentBlockhash"`
	BlockTime                int64               `json:"blockTime"`
	BlockHeight              uint64              `json:"blockHeight"`
	ExecutedTransactionCount uint64              `json:"executedTransactionCount"`
	EntriesCount             uint64              `json:"entriesCount"`
	Transactions             []TransactionUpdate `json:"transactions,omitempty"`
	Accounts                 []AccountUpdate     `json:"accounts,omitempty"`
	Entries                  []EntryUpdate       `json:"entries,omitempty"`
}

// PingUpdate is a keep-alive frame initiated by the server. The client
// answers it on the outbound direction; consumers normally never see it.
type PingUpdate struct {
	ID int32 `json:"id"`
}

// PongUpdate is the server's answer to a client ping. It closes the
// keep-alive exchange and must never be answered, or each side's reply
// would feed the other's indefinitely.
type PongUpdate struct {
	ID int32 `json:"id"`
}
