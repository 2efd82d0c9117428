package geyser

import (
	"errors"
	"fmt"
)

// ErrClientClosed is returned by operations on a closed client or session.
var ErrClientClosed = errors.New("client closed")

// ErrEmptyRequest is returned by Build when no filter of any kind is present.
var ErrEmptyRequest = errors.New("subscribe request has no filters")

// ValidationError reports malformed filter input. It is fatal to the
// builder call only; no network activity happens before it surfaces.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError reports rejected credentials. It is fatal to the session and
// never retried.
type AuthError struct {
	Endpoint string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected by %s: %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports a recoverable connection failure. Keepalive
// timeouts are folded into it with Timeout set.
type TransportError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport timeout during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a single malformed frame. The frame is dropped and
// the session continues.
type ProtocolError struct {
	Discriminant string
	Err          error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed %q frame: %v", e.Discriminant, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsRetryable reports whether the reconnect supervisor may recover from err
// by backing off and dialing again.
func IsRetryable(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
