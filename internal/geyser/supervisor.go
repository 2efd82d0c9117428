package geyser

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// SupervisorState is a reconnect state machine state.
type SupervisorState int

const (
	StateConnected SupervisorState = iota
	StateDisconnected
	StateBackoff
	StateReconnecting
	// StateCancelled is terminal, reached on caller-initiated shutdown.
	StateCancelled
	// StateFailed is terminal, reached on a non-retryable error such as
	// rejected credentials or an exhausted attempt cap.
	StateFailed
)

// String returns a human-readable state name.
func (s SupervisorState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateBackoff:
		return "backoff"
	case StateReconnecting:
		return "reconnecting"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateChange describes one supervisor transition, surfaced through the
// Observer for diagnostics.
type StateChange struct {
	From    SupervisorState
	To      SupervisorState
	Attempt int
	Delay   time.Duration
	Err     error
}

// Backoff defaults.
const (
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffCap     = 8 * time.Second
	DefaultJitterFraction = 0.2
)

// BackoffConfig tunes reconnect pacing. Delays grow as
// min(Base*2^n, Cap) with random jitter bounded by JitterFraction of the
// computed delay.
type BackoffConfig struct {
	Base time.Duration
	Cap  time.Duration
	// JitterFraction is the bounded random fraction added to or removed
	// from each delay. Zero disables jitter only when JitterSet is true.
	JitterFraction float64
	// JitterSet distinguishes an explicit zero jitter from the default.
	JitterSet bool
	// MaxAttempts caps consecutive failed reconnects; zero retries
	// indefinitely.
	MaxAttempts int
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Base == 0 {
		c.Base = DefaultBackoffBase
	}
	if c.Cap == 0 {
		c.Cap = DefaultBackoffCap
	}
	if c.JitterFraction == 0 && !c.JitterSet {
		c.JitterFraction = DefaultJitterFraction
	}
	return c
}

func newBackoff(cfg BackoffConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Base
	b.MaxInterval = cfg.Cap
	b.Multiplier = 2
	b.RandomizationFactor = cfg.JitterFraction
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// DialFunc opens a fresh session.
type DialFunc func(ctx context.Context) (*Session, error)

// Supervisor drives the reconnect state machine. It owns no goroutines:
// the client's reader activity calls Reconnect when the current session
// fails, so session swaps are naturally serialized.
//
// Supervisor is not safe for concurrent use.
type Supervisor struct {
	dial   DialFunc
	cfg    BackoffConfig
	bo     *backoff.ExponentialBackOff
	obs    Observer
	logger *zap.Logger

	state    SupervisorState
	attempts int
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithSupervisorObserver reports state transitions to obs.
func WithSupervisorObserver(obs Observer) SupervisorOption {
	return func(s *Supervisor) { s.obs = obs }
}

// WithSupervisorLogger sets the logger.
func WithSupervisorLogger(logger *zap.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = logger }
}

// NewSupervisor returns a supervisor in the Connected state.
func NewSupervisor(dial DialFunc, cfg BackoffConfig, opts ...SupervisorOption) *Supervisor {
	cfg = cfg.withDefaults()
	s := &Supervisor{
		dial:   dial,
		cfg:    cfg,
		bo:     newBackoff(cfg),
		obs:    nopObserver{},
		logger: zap.NewNop(),
		state:  StateConnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Supervisor) State() SupervisorState {
	return s.state
}

// Reconnect recovers from cause: it backs off, redials and resubmits the
// last request until a session is established or a terminal state is
// reached. On success the new session already carries the resubmitted
// subscription and the attempt counter is reset.
//
// hasReq guards resubmission for sessions that never sent a request.
func (s *Supervisor) Reconnect(ctx context.Context, cause error, last SubscribeRequest, hasReq bool) (*Session, error) {
	s.transition(StateDisconnected, StateChange{Err: cause})

	for {
		if s.cfg.MaxAttempts > 0 && s.attempts >= s.cfg.MaxAttempts {
			err := fmt.Errorf("reconnect attempts exhausted after %d tries: %w", s.attempts, cause)
			s.transition(StateFailed, StateChange{Attempt: s.attempts, Err: err})
			return nil, err
		}

		s.attempts++
		delay := s.bo.NextBackOff()
		s.transition(StateBackoff, StateChange{Attempt: s.attempts, Delay: delay})

		select {
		case <-ctx.Done():
			s.transition(StateCancelled, StateChange{Attempt: s.attempts, Err: ctx.Err()})
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		s.transition(StateReconnecting, StateChange{Attempt: s.attempts})

		sess, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.transition(StateCancelled, StateChange{Attempt: s.attempts, Err: ctx.Err()})
				return nil, ctx.Err()
			}
			if !IsRetryable(err) {
				s.transition(StateFailed, StateChange{Attempt: s.attempts, Err: err})
				return nil, err
			}
			s.logger.Warn("reconnect dial failed",
				zap.Int("attempt", s.attempts),
				zap.Error(err))
			cause = err
			continue
		}

		if hasReq {
			if err := sess.Send(last); err != nil {
				sess.Close()
				s.logger.Warn("resubscribe failed",
					zap.Int("attempt", s.attempts),
					zap.Error(err))
				cause = err
				continue
			}
		}

		s.attempts = 0
		s.bo.Reset()
		s.transition(StateConnected, StateChange{})
		return sess, nil
	}
}

// Cancel moves the supervisor to its terminal Cancelled state. Used when the
// caller shuts down while no reconnect is in flight.
func (s *Supervisor) Cancel() {
	if s.state != StateCancelled && s.state != StateFailed {
		s.transition(StateCancelled, StateChange{})
	}
}

func (s *Supervisor) transition(to SupervisorState, change StateChange) {
	change.From = s.state
	change.To = to
	s.state = to

	s.obs.StateChanged(change)
	s.logger.Debug("stream state change",
		zap.Stringer("from", change.From),
		zap.Stringer("to", change.To),
		zap.Int("attempt", change.Attempt),
		zap.Duration("delay", change.Delay),
		zap.Error(change.Err))
}
