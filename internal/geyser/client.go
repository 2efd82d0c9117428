package geyser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Client defaults.
const (
	DefaultUpdateBuffer = 1024
	DefaultPingInterval = 15 * time.Second
)

// Config assembles everything one streaming client needs. Endpoint and the
// initial filter set come from the caller's configuration layer.
type Config struct {
	// Endpoint is the websocket URL of the streaming service.
	Endpoint string
	// Token authenticates the handshake. Optional.
	Token string

	Session SessionConfig
	Backoff BackoffConfig

	// Buffer is the capacity of the updates channel. When the consumer
	// falls behind and the buffer fills, the reader blocks: no update is
	// dropped, at the cost of head-of-line blocking across all kinds.
	Buffer int

	// PingInterval paces client keep-alive pings. Negative disables them.
	PingInterval time.Duration

	// DisablePingReply stops the client from answering server pings.
	// Load balancers that expect client pings will then recycle the
	// connection at their own idle timeout.
	DisablePingReply bool

	// ForwardPings delivers ping updates to the consumer instead of
	// handling them internally.
	ForwardPings bool

	// Gate overrides the default pass-through commitment gate.
	Gate *Gate

	Observer Observer
	Logger   *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Buffer == 0 {
		c.Buffer = DefaultUpdateBuffer
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Gate == nil {
		c.Gate = NewGate(WithGateObserver(c.Observer))
	}
	return c
}

// Client maintains one active subscription to the streaming service. A
// reader goroutine pulls frames, classifies and gates them, and hands the
// survivors to the consumer through a bounded channel; a keep-alive
// goroutine paces outbound pings. Connection loss is recovered internally:
// the consumer observes a contiguous update stream with gaps during
// reconnect, never an explicit disconnect.
type Client struct {
	cfg   Config
	demux *Demux
	gate  *Gate
	sup   *Supervisor

	sessMu sync.Mutex
	sess   *Session

	builderMu  sync.Mutex
	builder    *RequestBuilder
	commitment CommitmentLevel

	updates chan Update

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	errMu    sync.Mutex
	finalErr error

	pingSeq atomic.Int32
}

// Connect dials the streaming service, submits the subscription built from
// builder at the given commitment level, and starts the reader and
// keep-alive activities. The builder is owned by the client afterwards;
// mutate it only through UpdateFilters.
func Connect(ctx context.Context, cfg Config, builder *RequestBuilder, commitment CommitmentLevel) (*Client, error) {
	cfg = cfg.withDefaults()

	req, err := builder.Build(commitment)
	if err != nil {
		return nil, err
	}

	sess, err := DialSession(ctx, cfg.Endpoint, cfg.Token, cfg.Session)
	if err != nil {
		return nil, err
	}
	if err := sess.Send(req); err != nil {
		sess.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c := &Client{
		cfg:        cfg,
		demux:      NewDemux(cfg.Observer),
		gate:       cfg.Gate,
		sess:       sess,
		builder:    builder,
		commitment: commitment,
		updates:    make(chan Update, cfg.Buffer),
		ctx:        runCtx,
		cancel:     cancel,
	}

	dial := func(ctx context.Context) (*Session, error) {
		return DialSession(ctx, cfg.Endpoint, cfg.Token, cfg.Session)
	}
	c.sup = NewSupervisor(dial, cfg.Backoff,
		WithSupervisorObserver(cfg.Observer),
		WithSupervisorLogger(cfg.Logger))

	c.wg.Add(1)
	go c.readLoop()

	if cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}

	return c, nil
}

// Updates returns the stream of admitted updates. The channel is closed
// when the client shuts down or hits a terminal error; check Err afterwards.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Err returns the terminal error, if any, after Updates is closed.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.finalErr
}

// UpdateFilters applies mutate to the filter set, rebuilds the request and
// resends it on the live session, atomically replacing the active
// subscription. On any error the active subscription and the filter set are
// both unchanged: the mutation is applied to a copy and committed only after
// the send succeeds, so a failed send cannot leak the mutation into a later
// resubmission.
func (c *Client) UpdateFilters(mutate func(*RequestBuilder) error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.builderMu.Lock()
	defer c.builderMu.Unlock()

	next := c.builder.clone()
	if err := mutate(next); err != nil {
		return err
	}
	req, err := next.Build(c.commitment)
	if err != nil {
		return err
	}
	if err := c.currentSession().Send(req); err != nil {
		return err
	}
	c.builder = next
	return nil
}

// SetCommitment rebuilds and resends the subscription at a new commitment
// level.
func (c *Client) SetCommitment(level CommitmentLevel) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.builderMu.Lock()
	defer c.builderMu.Unlock()

	req, err := c.builder.Build(level)
	if err != nil {
		return err
	}
	if err := c.currentSession().Send(req); err != nil {
		return err
	}
	c.commitment = level
	return nil
}

// DecodeFailures returns the count of frames dropped by the demultiplexer.
func (c *Client) DecodeFailures() uint64 {
	return c.demux.DecodeFailures()
}

// GateDropped returns the count of updates rejected by the commitment gate.
func (c *Client) GateDropped() uint64 {
	return c.gate.Dropped()
}

// Close shuts both activities down, releases the connection and closes the
// updates channel. Safe to call multiple times.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.cancel()
	err := c.currentSession().Close()
	c.wg.Wait()
	// The reader may have swapped in a fresh session between the close
	// above and its exit; close again to release whichever is current.
	c.currentSession().Close()
	c.sup.Cancel()
	return err
}

func (c *Client) currentSession() *Session {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.sess
}

// swapSession detaches the old session and attaches the new one. The old
// session is already closed by the time the supervisor hands out a
// replacement.
func (c *Client) swapSession(sess *Session) {
	c.sessMu.Lock()
	c.sess = sess
	c.sessMu.Unlock()
}

// readLoop is the reader activity: it owns frame consumption, demux, the
// gate and reconnect recovery. It is the only sender on the updates
// channel.
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.updates)

	for {
		sess := c.currentSession()

		frame, err := sess.NextFrame()
		if err != nil {
			if c.closed.Load() || errors.Is(err, ErrClientClosed) {
				return
			}

			sess.Close()
			last, hasReq := sess.LastRequest()

			next, rerr := c.sup.Reconnect(c.ctx, err, last, hasReq)
			if rerr != nil {
				if !c.closed.Load() {
					c.fail(rerr)
				}
				return
			}
			// Close may have run while the reconnect was in flight;
			// the fresh session must not outlive it.
			if c.closed.Load() {
				next.Close()
				return
			}
			c.swapSession(next)
			continue
		}

		u := c.demux.Classify(frame, time.Now())

		switch u.Kind {
		case KindPing:
			// Only server-initiated pings are answered. Pongs close
			// our own keep-alive exchange; answering them would ping
			// the server again and echo forever.
			if !c.cfg.DisablePingReply {
				if err := sess.Ping(u.Ping.ID); err != nil {
					c.cfg.Logger.Debug("ping reply failed", zap.Error(err))
				}
			}
			if !c.cfg.ForwardPings {
				continue
			}
		case KindPong:
			if !c.cfg.ForwardPings {
				continue
			}
		}

		if !c.gate.Admit(u) {
			continue
		}

		select {
		case c.updates <- u:
		case <-c.ctx.Done():
			return
		}
	}
}

// pingLoop is part of the writer activity: it paces outbound keep-alives.
// Write failures are left for the reader to notice through its deadline.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.currentSession().Ping(c.pingSeq.Add(1)); err != nil {
				c.cfg.Logger.Debug("keepalive ping failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) fail(err error) {
	c.errMu.Lock()
	c.finalErr = err
	c.errMu.Unlock()

	c.cfg.Logger.Error("stream terminated", zap.Error(err))
	c.cancel()
}
