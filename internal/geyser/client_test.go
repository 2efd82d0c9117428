package geyser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStreamServer runs handler once per accepted websocket connection.
func newStreamServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func writeUpdate(t *testing.T, conn *websocket.Conn, u Update) {
	t.Helper()
	frame, err := encodeUpdate(u)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func fastBackoff() BackoffConfig {
	return BackoffConfig{Base: time.Millisecond, Cap: 10 * time.Millisecond, JitterSet: true}
}

func accountBuilder(t *testing.T, owner string) *RequestBuilder {
	t.Helper()
	b := NewRequestBuilder()
	require.NoError(t, b.AddAccountFilter("client", AccountFilter{Owner: []string{owner}}))
	return b
}

func TestClientForwardsServerFilteredUpdates(t *testing.T) {
	// The subscription filters on owner X, but the server replies with an
	// account owned by someone else. Filtering is the server's job: the
	// core must forward the update as-is, no local owner check.
	server := newStreamServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var f outboundFrame
		if err := json.Unmarshal(msg, &f); err != nil || f.Subscribe == nil {
			t.Errorf("first message is not a subscribe frame: %s", msg)
			return
		}
		if owners := f.Subscribe.Accounts["client"].Owner; len(owners) != 1 || owners[0] != tokenProgram {
			t.Errorf("unexpected owners in subscription: %v", owners)
		}
		if f.Subscribe.Commitment != CommitmentConfirmed {
			t.Errorf("unexpected commitment: %v", f.Subscribe.Commitment)
		}

		writeUpdate(t, conn, Update{
			Kind: KindAccount,
			Slot: 500,
			Account: &AccountUpdate{
				Pubkey:   wrappedSOL,
				Owner:    systemProgram,
				Lamports: 1,
			},
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentConfirmed)
	require.NoError(t, err)
	defer client.Close()

	select {
	case u := <-client.Updates():
		require.Equal(t, KindAccount, u.Kind)
		require.NotNil(t, u.Account)
		assert.Equal(t, wrappedSOL, u.Account.Pubkey)
		assert.Equal(t, systemProgram, u.Account.Owner)
		assert.Equal(t, uint64(500), u.Slot)
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}
}

func TestClientReconnectsAndResubscribes(t *testing.T) {
	var connCount atomic.Int32
	subscribes := make(chan []byte, 2)

	server := newStreamServer(t, func(conn *websocket.Conn) {
		n := connCount.Add(1)

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribes <- msg

		if n == 1 {
			// Simulate a transport failure after the subscription
			// lands.
			conn.Close()
			return
		}

		writeUpdate(t, conn, Update{
			Kind:       KindSlot,
			Slot:       777,
			SlotStatus: &SlotUpdate{Slot: 777, Status: "confirmed"},
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	obs := &recordingObserver{}
	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		Backoff:      fastBackoff(),
		Observer:     obs,
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)
	defer client.Close()

	select {
	case u := <-client.Updates():
		assert.Equal(t, KindSlot, u.Kind)
		assert.Equal(t, uint64(777), u.Slot)
	case <-time.After(5 * time.Second):
		t.Fatal("no update after reconnect")
	}

	first := <-subscribes
	second := <-subscribes
	assert.Equal(t, first, second, "resubscription must be bit-identical")

	states := obs.states()
	assert.Contains(t, states, StateDisconnected)
	assert.Contains(t, states, StateReconnecting)
	assert.Equal(t, StateConnected, states[len(states)-1])
}

func TestClientAnswersServerPings(t *testing.T) {
	pongs := make(chan outboundFrame, 1)

	server := newStreamServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","ping":{"id":7}}`)); err != nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f outboundFrame
		if err := json.Unmarshal(msg, &f); err == nil {
			pongs <- f
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)
	defer client.Close()

	select {
	case f := <-pongs:
		assert.Equal(t, framePing, f.Type)
		require.NotNil(t, f.Ping)
		assert.Equal(t, int32(7), f.Ping.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("client never answered the ping")
	}

	// Pings stay internal: the consumer must not see them.
	select {
	case u := <-client.Updates():
		t.Fatalf("unexpected update surfaced: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientUpdateFiltersResendsRequest(t *testing.T) {
	requests := make(chan *SubscribeRequest, 2)

	server := newStreamServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f outboundFrame
			if err := json.Unmarshal(msg, &f); err == nil && f.Subscribe != nil {
				requests <- f.Subscribe
			}
		}
	})

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)
	defer client.Close()

	first := <-requests
	require.Empty(t, first.Slots)

	err = client.UpdateFilters(func(b *RequestBuilder) error {
		return b.AddSlotFilter("slots", SlotFilter{})
	})
	require.NoError(t, err)

	select {
	case second := <-requests:
		assert.Len(t, second.Slots, 1)
		assert.Len(t, second.Accounts, 1, "existing filters must be merged client-side")
	case <-time.After(2 * time.Second):
		t.Fatal("no resent request")
	}
}

func TestClientUpdateFiltersRejectsInvalidMutation(t *testing.T) {
	server := newStreamServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)
	defer client.Close()

	err = client.UpdateFilters(func(b *RequestBuilder) error {
		return b.AddAccountFilter("bad", AccountFilter{Account: []string{"nope"}})
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestClientGateDropsStaleSlots(t *testing.T) {
	server := newStreamServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for _, slot := range []uint64{100, 102, 101, 103} {
			writeUpdate(t, conn, Update{
				Kind:       KindSlot,
				Slot:       slot,
				SlotStatus: &SlotUpdate{Slot: slot, Status: "processed"},
			})
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		Gate:         NewGate(WithDefaultPolicy(MonotonicSlot)),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)
	defer client.Close()

	var got []uint64
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case u := <-client.Updates():
			got = append(got, u.Slot)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}

	assert.Equal(t, []uint64{100, 102, 103}, got)
	assert.Equal(t, uint64(1), client.GateDropped())
}

func TestClientPreservesArrivalOrderUnderBackpressure(t *testing.T) {
	const frames = 50

	server := newStreamServer(t, func(conn *websocket.Conn) {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		for slot := uint64(1); slot <= frames; slot++ {
			writeUpdate(t, conn, Update{
				Kind:       KindSlot,
				Slot:       slot,
				SlotStatus: &SlotUpdate{Slot: slot, Status: "processed"},
			})
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	// A one-slot buffer forces the reader to block on every frame; no
	// update may be dropped or reordered.
	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		Buffer:       1,
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)
	defer client.Close()

	var got []uint64
	timeout := time.After(5 * time.Second)
	for len(got) < frames {
		select {
		case u := <-client.Updates():
			time.Sleep(time.Millisecond) // slow consumer
			got = append(got, u.Slot)
		case <-timeout:
			t.Fatalf("timed out after %d updates", len(got))
		}
	}

	for i, slot := range got {
		require.Equal(t, uint64(i+1), slot)
	}
}

func TestClientConnectAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := Connect(context.Background(), Config{
		Endpoint: wsEndpoint(server),
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "want AuthError, got %v", err)
}

func TestClientConnectEmptyBuilder(t *testing.T) {
	_, err := Connect(context.Background(), Config{
		Endpoint: "ws://127.0.0.1:1",
	}, NewRequestBuilder(), CommitmentProcessed)

	// Validation fails before any network activity.
	require.ErrorIs(t, err, ErrEmptyRequest)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	server := newStreamServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	// The updates channel is closed and no terminal error is recorded.
	_, open := <-client.Updates()
	assert.False(t, open)
	assert.NoError(t, client.Err())

	err = client.UpdateFilters(func(b *RequestBuilder) error { return nil })
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestClientDoesNotAnswerServerPongs(t *testing.T) {
	var connCount atomic.Int32
	replies := make(chan outboundFrame, 4)
	silent := make(chan struct{})

	server := newStreamServer(t, func(conn *websocket.Conn) {
		if connCount.Add(1) > 1 {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}

		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","ping":{"id":3}}`)); err != nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f outboundFrame
		if err := json.Unmarshal(msg, &f); err == nil {
			replies <- f
		}

		// Answer the client's ping. A correct client lets the exchange
		// end here; a client that replies to pongs would keep the two
		// sides feeding each other.
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong","pong":{"id":3}}`)); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(400 * time.Millisecond))
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(silent)
				return
			}
			if err := json.Unmarshal(msg, &f); err == nil {
				replies <- f
			}
		}
	})

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		Backoff:      fastBackoff(),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)
	defer client.Close()

	select {
	case f := <-replies:
		assert.Equal(t, framePing, f.Type)
		require.NotNil(t, f.Ping)
		assert.Equal(t, int32(3), f.Ping.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("client never answered the ping")
	}

	select {
	case <-silent:
	case <-time.After(2 * time.Second):
		t.Fatal("server never reached its read deadline")
	}
	assert.Empty(t, replies, "the pong must not be answered")
}

func TestClientCloseDuringReconnect(t *testing.T) {
	var connCount atomic.Int32
	dialing := make(chan struct{})
	release := make(chan struct{})

	// The second dial parks before the upgrade so the reconnect stays in
	// flight for as long as the test needs it to.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if connCount.Add(1) > 1 {
			close(dialing)
			<-release
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()
	defer close(release)

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		Backoff:      fastBackoff(),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)

	select {
	case <-dialing:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect attempt observed")
	}

	start := time.Now()
	require.NoError(t, client.Close())
	assert.Less(t, time.Since(start), time.Second, "close must not wait out the keepalive deadline")

	_, open := <-client.Updates()
	assert.False(t, open)
	assert.NoError(t, client.Err(), "a close-initiated shutdown is not a failure")
}

func TestClientCloseReleasesReconnectedSession(t *testing.T) {
	var connCount atomic.Int32
	secondGone := make(chan struct{})

	server := newStreamServer(t, func(conn *websocket.Conn) {
		n := connCount.Add(1)
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		if n == 1 {
			conn.Close()
			return
		}
		writeUpdate(t, conn, Update{
			Kind:       KindSlot,
			Slot:       42,
			SlotStatus: &SlotUpdate{Slot: 42, Status: "processed"},
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(secondGone)
				return
			}
		}
	})

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		Backoff:      fastBackoff(),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)

	select {
	case u := <-client.Updates():
		require.Equal(t, uint64(42), u.Slot)
	case <-time.After(5 * time.Second):
		t.Fatal("no update after reconnect")
	}

	require.NoError(t, client.Close())

	// The session swapped in by the reconnect is the one Close must tear
	// down; the server sees it as a read error on the second connection.
	select {
	case <-secondGone:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnected session still open after close")
	}
}

func TestClientUpdateFiltersKeepsFiltersOnSendFailure(t *testing.T) {
	var connCount atomic.Int32
	var releaseOnce sync.Once
	dialing := make(chan struct{})
	release := make(chan struct{})
	releaseConn := func() { releaseOnce.Do(func() { close(release) }) }
	subscribes := make(chan *SubscribeRequest, 2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if connCount.Add(1) == 2 {
			close(dialing)
			<-release
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f outboundFrame
			if err := json.Unmarshal(msg, &f); err == nil && f.Subscribe != nil {
				subscribes <- f.Subscribe
			}
			if connCount.Load() == 1 {
				conn.Close()
				return
			}
		}
	}))
	defer server.Close()
	defer releaseConn()

	client, err := Connect(context.Background(), Config{
		Endpoint:     wsEndpoint(server),
		Backoff:      fastBackoff(),
		PingInterval: -1,
	}, accountBuilder(t, tokenProgram), CommitmentProcessed)
	require.NoError(t, err)
	defer client.Close()

	first := <-subscribes
	require.Empty(t, first.Slots)

	select {
	case <-dialing:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect attempt observed")
	}

	// The reconnect is parked, so the send lands on the torn-down session
	// and fails. The mutation must not survive the failure.
	err = client.UpdateFilters(func(b *RequestBuilder) error {
		return b.AddSlotFilter("slots", SlotFilter{})
	})
	require.Error(t, err)

	releaseConn()

	select {
	case second := <-subscribes:
		assert.Empty(t, second.Slots, "a failed filter change must not leak into the resubscription")
		assert.Equal(t, first.Accounts, second.Accounts)
	case <-time.After(5 * time.Second):
		t.Fatal("no resubscription after reconnect")
	}
}
