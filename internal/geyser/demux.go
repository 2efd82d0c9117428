package geyser

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"
)

// Demux classifies raw inbound frames into typed updates. A frame that
// cannot be classified becomes Kind Unknown and increments the decode
// failure counter; classification never fails the session.
type Demux struct {
	obs      Observer
	failures atomic.Uint64
}

// NewDemux returns a demultiplexer reporting to obs. A nil obs disables
// reporting.
func NewDemux(obs Observer) *Demux {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Demux{obs: obs}
}

// DecodeFailures returns the number of frames that failed classification.
func (d *Demux) DecodeFailures() uint64 {
	return d.failures.Load()
}

// Classify decodes the kind discriminant first, then the kind-specific
// payload. receivedAt stamps the resulting update.
func (d *Demux) Classify(raw []byte, receivedAt time.Time) Update {
	var head frameHead
	if err := json.Unmarshal(raw, &head); err != nil {
		return d.unknown(receivedAt, head.Type, err)
	}

	kind, ok := kindForDiscriminant(head.Type)
	if !ok {
		return d.unknown(receivedAt, head.Type, errUnknownDiscriminant)
	}

	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return d.unknown(receivedAt, head.Type, err)
	}

	u := Update{Kind: kind, Slot: f.Slot, ReceivedAt: receivedAt, Filters: f.Filters}
	switch kind {
	case KindAccount:
		if f.Account == nil {
			return d.unknown(receivedAt, head.Type, errMissingPayload)
		}
		u.Account = f.Account
	case KindTransaction:
		if f.Transaction == nil {
			return d.unknown(receivedAt, head.Type, errMissingPayload)
		}
		u.Transaction = f.Transaction
	case KindSlot:
		if f.SlotStatus == nil {
			return d.unknown(receivedAt, head.Type, errMissingPayload)
		}
		u.SlotStatus = f.SlotStatus
		if u.Slot == 0 {
			u.Slot = f.SlotStatus.Slot
		}
	case KindBlock:
		if f.Block == nil {
			return d.unknown(receivedAt, head.Type, errMissingPayload)
		}
		u.Block = f.Block
		if u.Slot == 0 {
			u.Slot = f.Block.Slot
		}
	case KindBlockMeta:
		if f.BlockMeta == nil {
			return d.unknown(receivedAt, head.Type, errMissingPayload)
		}
		u.BlockMeta = f.BlockMeta
		if u.Slot == 0 {
			u.Slot = f.BlockMeta.Slot
		}
	case KindEntry:
		if f.Entry == nil {
			return d.unknown(receivedAt, head.Type, errMissingPayload)
		}
		u.Entry = f.Entry
		if u.Slot == 0 {
			u.Slot = f.Entry.Slot
		}
	case KindPing:
		if f.Ping == nil {
			f.Ping = &PingUpdate{}
		}
		u.Ping = f.Ping
	case KindPong:
		if f.Pong == nil {
			f.Pong = &PongUpdate{}
		}
		u.Pong = f.Pong
	}

	d.obs.UpdateReceived(kind)
	return u
}

var (
	errUnknownDiscriminant = errors.New("unknown discriminant")
	errMissingPayload      = errors.New("missing payload for discriminant")
)

func (d *Demux) unknown(receivedAt time.Time, discriminant string, cause error) Update {
	d.failures.Add(1)
	d.obs.DecodeFailure()
	return Update{
		Kind:       KindUnknown,
		ReceivedAt: receivedAt,
		Err:        &ProtocolError{Discriminant: discriminant, Err: cause},
	}
}

func kindForDiscriminant(t string) (UpdateKind, bool) {
	switch t {
	case frameAccount:
		return KindAccount, true
	case frameTransaction:
		return KindTransaction, true
	case frameSlot:
		return KindSlot, true
	case frameBlock:
		return KindBlock, true
	case frameBlockMeta:
		return KindBlockMeta, true
	case frameEntry:
		return KindEntry, true
	case framePing:
		return KindPing, true
	case framePong:
		return KindPong, true
	default:
		return KindUnknown, false
	}
}
