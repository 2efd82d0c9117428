package geyser

import "sync/atomic"

// GatePolicy decides how the commitment gate treats slot ordering for a
// kind.
type GatePolicy int

const (
	// PassThrough trusts server-side commitment filtering and drops
	// nothing. This is the default.
	PassThrough GatePolicy = iota
	// MonotonicSlot drops updates whose slot is lower than the highest
	// slot already seen for the kind. Equal slots pass, so a server that
	// replays the tip after reconnect delivers duplicates.
	MonotonicSlot
	// MonotonicSlotStrict drops updates whose slot is lower than or equal
	// to the highest slot seen. Use it when reconnect replay must be
	// deduplicated at slot granularity.
	MonotonicSlotStrict
)

// Gate enforces per-kind slot ordering before updates leave the core. It
// never rewrites payloads and holds no cross-session state: the supervisor
// builds a fresh gate per client, not per reconnect, so replay handling is
// an explicit policy choice.
//
// Gate is not safe for concurrent use; only the reader activity touches it.
type Gate struct {
	defaultPolicy GatePolicy
	policies      map[UpdateKind]GatePolicy
	lastSlot      map[UpdateKind]uint64
	dropped       atomic.Uint64
	obs           Observer
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithDefaultPolicy sets the policy for kinds without an explicit one.
func WithDefaultPolicy(p GatePolicy) GateOption {
	return func(g *Gate) { g.defaultPolicy = p }
}

// WithKindPolicy sets the policy for a single kind.
func WithKindPolicy(kind UpdateKind, p GatePolicy) GateOption {
	return func(g *Gate) { g.policies[kind] = p }
}

// WithGateObserver reports drops to obs.
func WithGateObserver(obs Observer) GateOption {
	return func(g *Gate) { g.obs = obs }
}

// NewGate returns a gate with PassThrough defaults.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		policies: make(map[UpdateKind]GatePolicy),
		lastSlot: make(map[UpdateKind]uint64),
		obs:      nopObserver{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit reports whether u may leave the core. Ping and Unknown updates
// carry no slot and always pass.
func (g *Gate) Admit(u Update) bool {
	if u.Kind == KindPing || u.Kind == KindUnknown {
		return true
	}

	policy, ok := g.policies[u.Kind]
	if !ok {
		policy = g.defaultPolicy
	}
	if policy == PassThrough {
		return true
	}

	last, seen := g.lastSlot[u.Kind]
	if seen {
		if u.Slot < last {
			return g.drop(u)
		}
		if policy == MonotonicSlotStrict && u.Slot == last {
			return g.drop(u)
		}
	}
	g.lastSlot[u.Kind] = u.Slot
	return true
}

// Dropped returns the number of updates rejected so far.
func (g *Gate) Dropped() uint64 {
	return g.dropped.Load()
}

func (g *Gate) drop(u Update) bool {
	g.dropped.Add(1)
	g.obs.UpdateDropped(u.Kind)
	return false
}
