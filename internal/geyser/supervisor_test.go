package geyser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEndpoint converts an httptest server URL to a websocket URL.
func wsEndpoint(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// recordingObserver collects state transitions for assertions.
type recordingObserver struct {
	mu      sync.Mutex
	changes []StateChange
}

func (o *recordingObserver) UpdateReceived(UpdateKind) {}
func (o *recordingObserver) DecodeFailure()            {}
func (o *recordingObserver) UpdateDropped(UpdateKind)  {}

func (o *recordingObserver) StateChanged(change StateChange) {
	o.mu.Lock()
	o.changes = append(o.changes, change)
	o.mu.Unlock()
}

func (o *recordingObserver) delays() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []time.Duration
	for _, c := range o.changes {
		if c.To == StateBackoff {
			out = append(out, c.Delay)
		}
	}
	return out
}

func (o *recordingObserver) states() []SupervisorState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SupervisorState, len(o.changes))
	for i, c := range o.changes {
		out[i] = c.To
	}
	return out
}

func noJitter(base, cap time.Duration) BackoffConfig {
	return BackoffConfig{Base: base, Cap: cap, JitterFraction: 0, JitterSet: true}
}

func TestBackoffSequence(t *testing.T) {
	bo := newBackoff(noJitter(500*time.Millisecond, 8*time.Second))

	want := []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
	}
	for i, w := range want {
		assert.Equal(t, w, bo.NextBackOff(), "attempt %d", i+1)
	}

	// Capped thereafter.
	assert.Equal(t, 8000*time.Millisecond, bo.NextBackOff())
}

func TestBackoffJitterBounds(t *testing.T) {
	cfg := BackoffConfig{Base: 100 * time.Millisecond, Cap: time.Second, JitterFraction: 0.5}
	bo := newBackoff(cfg)

	first := bo.NextBackOff()
	assert.GreaterOrEqual(t, first, 50*time.Millisecond)
	assert.LessOrEqual(t, first, 150*time.Millisecond+time.Nanosecond)
}

func TestSupervisorAuthErrorIsFatal(t *testing.T) {
	obs := &recordingObserver{}
	dial := func(ctx context.Context) (*Session, error) {
		return nil, &AuthError{Endpoint: "wss://x", Err: errors.New("bad token")}
	}
	sup := NewSupervisor(dial, noJitter(time.Millisecond, 10*time.Millisecond),
		WithSupervisorObserver(obs))

	_, err := sup.Reconnect(context.Background(), errors.New("boom"), SubscribeRequest{}, false)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, StateFailed, sup.State())
	assert.Equal(t, []SupervisorState{
		StateDisconnected, StateBackoff, StateReconnecting, StateFailed,
	}, obs.states())
}

func TestSupervisorRetriesTransportErrors(t *testing.T) {
	var attempts int
	dial := func(ctx context.Context) (*Session, error) {
		attempts++
		return nil, &TransportError{Op: "dial", Err: errors.New("refused")}
	}
	sup := NewSupervisor(dial, BackoffConfig{
		Base: time.Millisecond, Cap: 2 * time.Millisecond,
		JitterSet: true, MaxAttempts: 3,
	})

	_, err := sup.Reconnect(context.Background(), errors.New("boom"), SubscribeRequest{}, false)

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateFailed, sup.State())
}

func TestSupervisorCancelDuringBackoff(t *testing.T) {
	dial := func(ctx context.Context) (*Session, error) {
		t.Fatal("dial must not be reached")
		return nil, nil
	}
	sup := NewSupervisor(dial, noJitter(time.Hour, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sup.Reconnect(ctx, errors.New("boom"), SubscribeRequest{}, false)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, sup.State())
}

func TestSupervisorResubmitsLastRequest(t *testing.T) {
	received := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	b := NewRequestBuilder()
	require.NoError(t, b.AddAccountFilter("client", AccountFilter{Owner: []string{tokenProgram}}))
	require.NoError(t, b.AddSlotFilter("slots", SlotFilter{}))
	req, err := b.Build(CommitmentConfirmed)
	require.NoError(t, err)

	dial := func(ctx context.Context) (*Session, error) {
		return DialSession(ctx, wsEndpoint(server), "", SessionConfig{})
	}
	sup := NewSupervisor(dial, noJitter(time.Millisecond, 5*time.Millisecond))

	sess, err := sup.Reconnect(context.Background(), &TransportError{Op: "recv", Err: errors.New("reset")}, req, true)
	require.NoError(t, err)
	defer sess.Close()

	assert.Equal(t, StateConnected, sup.State())

	want, err := encodeSubscribe(req)
	require.NoError(t, err)

	select {
	case got := <-received:
		// Bit-identical to the request built before the failure.
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the resubscription")
	}

	// Attempt counter resets on success.
	last, hasReq := sess.LastRequest()
	require.True(t, hasReq)
	assert.Equal(t, req.Commitment, last.Commitment)
}
