package geyser

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Session configuration defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultKeepaliveTimeout = 30 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

// tokenHeader carries the auth token on the websocket handshake and on
// unary HTTP calls.
const tokenHeader = "X-Token"

// SessionConfig tunes one duplex connection.
type SessionConfig struct {
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// KeepaliveTimeout is the longest silence (no frames, including
	// pings) tolerated before NextFrame treats the connection as lost.
	KeepaliveTimeout time.Duration
	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.KeepaliveTimeout == 0 {
		c.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Session owns one duplex connection to the streaming service. The reader
// activity consumes NextFrame; the writer activity calls Send and Ping.
// A session is either open or closed; it cannot be reopened.
type Session struct {
	endpoint string
	cfg      SessionConfig
	conn     *websocket.Conn

	// writeMu serializes outbound writes; gorilla allows one writer.
	writeMu sync.Mutex

	closed atomic.Bool

	lastReqMu sync.Mutex
	lastReq   SubscribeRequest
	hasReq    bool

	lastFrame atomic.Int64 // unix nanos of the last received frame
}

// DialSession opens a websocket connection to endpoint, authenticating with
// token. A handshake rejected with 401 or 403 is an AuthError; every other
// failure is a TransportError.
func DialSession(ctx context.Context, endpoint, token string, cfg SessionConfig) (*Session, error) {
	cfg = cfg.withDefaults()

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	header := http.Header{}
	if token != "" {
		header.Set(tokenHeader, token)
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Endpoint: endpoint, Err: err}
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	s := &Session{
		endpoint: endpoint,
		cfg:      cfg,
		conn:     conn,
	}
	s.lastFrame.Store(time.Now().UnixNano())
	return s, nil
}

// Send replaces the active subscription with req. It is idempotent: each
// call fully replaces the prior subscription on the server. The request is
// remembered for resubmission after reconnect.
func (s *Session) Send(req SubscribeRequest) error {
	if s.closed.Load() {
		return ErrClientClosed
	}

	data, err := encodeSubscribe(req)
	if err != nil {
		return err
	}
	if err := s.write(data); err != nil {
		return err
	}

	s.lastReqMu.Lock()
	s.lastReq = req
	s.hasReq = true
	s.lastReqMu.Unlock()
	return nil
}

// Ping sends a client keep-alive frame.
func (s *Session) Ping(id int32) error {
	if s.closed.Load() {
		return ErrClientClosed
	}
	data, err := encodePing(id)
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// NextFrame blocks until a frame arrives, the peer closes, or the keepalive
// window elapses with no frames. Frames are returned strictly in server-send
// order. A keepalive expiry is reported as a TransportError with Timeout
// set; the session is unusable afterwards and must be replaced.
func (s *Session) NextFrame() ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClientClosed
	}

	s.conn.SetReadDeadline(time.Now().Add(s.cfg.KeepaliveTimeout))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if s.closed.Load() {
			return nil, ErrClientClosed
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &TransportError{Op: "recv", Err: err, Timeout: true}
		}
		return nil, &TransportError{Op: "recv", Err: err}
	}

	s.lastFrame.Store(time.Now().UnixNano())
	return data, nil
}

// LastRequest returns the last successfully sent subscription request.
func (s *Session) LastRequest() (SubscribeRequest, bool) {
	s.lastReqMu.Lock()
	defer s.lastReqMu.Unlock()
	return s.lastReq, s.hasReq
}

// LastFrameTime returns the arrival time of the most recent frame.
func (s *Session) LastFrameTime() time.Time {
	return time.Unix(0, s.lastFrame.Load())
}

// Close releases the connection. It is safe to call multiple times and from
// any goroutine.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
