package geyser

import (
	"encoding/json"
	"fmt"
)

// Wire discriminants. Outbound frames carry subscribe or ping; everything
// else is inbound.
const (
	frameSubscribe   = "subscribe"
	framePing        = "ping"
	framePong        = "pong"
	frameAccount     = "account"
	frameTransaction = "transaction"
	frameSlot        = "slot"
	frameBlock       = "block"
	frameBlockMeta   = "blockMeta"
	frameEntry       = "entry"
)

// frameHead is the discriminant-only view of a frame, decoded before any
// kind-specific payload.
type frameHead struct {
	Type string `json:"type"`
}

// inboundFrame is the full envelope of a server-sent frame. Exactly one
// payload field matching Type is expected to be present.
type inboundFrame struct {
	Type    string   `json:"type"`
	Slot    uint64   `json:"slot,omitempty"`
	Filters []string `json:"filters,omitempty"`

	Account     *AccountUpdate     `json:"account,omitempty"`
	Transaction *TransactionUpdate `json:"transaction,omitempty"`
	SlotStatus  *SlotUpdate        `json:"slotStatus,omitempty"`
	Block       *BlockUpdate       `json:"block,omitempty"`
	BlockMeta   *BlockMetaUpdate   `json:"blockMeta,omitempty"`
	Entry       *EntryUpdate       `json:"entry,omitempty"`
	Ping        *PingUpdate        `json:"ping,omitempty"`
	Pong        *PongUpdate        `json:"pong,omitempty"`
}

// outboundFrame is the envelope of a client-sent frame.
type outboundFrame struct {
	Type      string            `json:"type"`
	Subscribe *SubscribeRequest `json:"subscribe,omitempty"`
	Ping      *PingRequest      `json:"ping,omitempty"`
}

// encodeSubscribe serializes a subscription request frame.
func encodeSubscribe(req SubscribeRequest) ([]byte, error) {
	data, err := json.Marshal(outboundFrame{Type: frameSubscribe, Subscribe: &req})
	if err != nil {
		return nil, fmt.Errorf("encode subscribe frame: %w", err)
	}
	return data, nil
}

// encodePing serializes a client keep-alive frame.
func encodePing(id int32) ([]byte, error) {
	data, err := json.Marshal(outboundFrame{Type: framePing, Ping: &PingRequest{ID: id}})
	if err != nil {
		return nil, fmt.Errorf("encode ping frame: %w", err)
	}
	return data, nil
}

// encodeUpdate serializes an update as a server frame. Used by tests and by
// stream recorders; the client itself only decodes.
func encodeUpdate(u Update) ([]byte, error) {
	f := inboundFrame{
		Type:        u.Kind.String(),
		Slot:        u.Slot,
		Filters:     u.Filters,
		Account:     u.Account,
		Transaction: u.Transaction,
		SlotStatus:  u.SlotStatus,
		Block:       u.Block,
		BlockMeta:   u.BlockMeta,
		Entry:       u.Entry,
		Ping:        u.Ping,
		Pong:        u.Pong,
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", u.Kind, err)
	}
	return data, nil
}
