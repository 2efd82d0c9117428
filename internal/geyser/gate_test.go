package geyser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func slotUpdates(kind UpdateKind, slots ...uint64) []Update {
	out := make([]Update, len(slots))
	for i, s := range slots {
		out[i] = Update{Kind: kind, Slot: s}
	}
	return out
}

func admittedSlots(g *Gate, updates []Update) []uint64 {
	var out []uint64
	for _, u := range updates {
		if g.Admit(u) {
			out = append(out, u.Slot)
		}
	}
	return out
}

func TestGateMonotonicSlot(t *testing.T) {
	g := NewGate(WithDefaultPolicy(MonotonicSlot))

	got := admittedSlots(g, slotUpdates(KindAccount, 100, 102, 101, 103))

	assert.Equal(t, []uint64{100, 102, 103}, got)
	assert.Equal(t, uint64(1), g.Dropped())
}

func TestGatePassThroughDefault(t *testing.T) {
	g := NewGate()

	got := admittedSlots(g, slotUpdates(KindAccount, 100, 102, 101, 103))

	assert.Equal(t, []uint64{100, 102, 101, 103}, got)
	assert.Equal(t, uint64(0), g.Dropped())
}

func TestGateMonotonicAllowsEqualSlots(t *testing.T) {
	g := NewGate(WithDefaultPolicy(MonotonicSlot))

	got := admittedSlots(g, slotUpdates(KindTransaction, 100, 100, 101))

	assert.Equal(t, []uint64{100, 100, 101}, got)
}

func TestGateStrictDropsEqualSlots(t *testing.T) {
	g := NewGate(WithDefaultPolicy(MonotonicSlotStrict))

	got := admittedSlots(g, slotUpdates(KindTransaction, 100, 100, 101))

	assert.Equal(t, []uint64{100, 101}, got)
	assert.Equal(t, uint64(1), g.Dropped())
}

func TestGatePerKindState(t *testing.T) {
	// Slot tracking is per kind: regress in one kind must not affect
	// another.
	g := NewGate(WithDefaultPolicy(MonotonicSlot))

	assert.True(t, g.Admit(Update{Kind: KindAccount, Slot: 200}))
	assert.True(t, g.Admit(Update{Kind: KindSlot, Slot: 100}))
	assert.False(t, g.Admit(Update{Kind: KindAccount, Slot: 150}))
	assert.True(t, g.Admit(Update{Kind: KindSlot, Slot: 150}))
}

func TestGatePerKindPolicyOverride(t *testing.T) {
	g := NewGate(
		WithDefaultPolicy(PassThrough),
		WithKindPolicy(KindSlot, MonotonicSlot),
	)

	assert.True(t, g.Admit(Update{Kind: KindSlot, Slot: 100}))
	assert.False(t, g.Admit(Update{Kind: KindSlot, Slot: 99}))
	// Accounts keep the pass-through default.
	assert.True(t, g.Admit(Update{Kind: KindAccount, Slot: 100}))
	assert.True(t, g.Admit(Update{Kind: KindAccount, Slot: 99}))
}

func TestGateAlwaysAdmitsPingAndUnknown(t *testing.T) {
	g := NewGate(WithDefaultPolicy(MonotonicSlotStrict))

	for i := 0; i < 3; i++ {
		assert.True(t, g.Admit(Update{Kind: KindPing}))
		assert.True(t, g.Admit(Update{Kind: KindUnknown}))
	}
	assert.Equal(t, uint64(0), g.Dropped())
}
