package uplink

import (
	"errors"
	"fmt"
)

var (
	// ErrCaptureUnavailable is the fatal error for a capture source that
	// cannot be opened or has gone away. It ends the session; it is never
	// retried.
	ErrCaptureUnavailable = errors.New("uplink: capture unavailable")

	// ErrEndOfStream reports a capture read that returned no data. The
	// engine treats it like a lost connection and reconnects.
	ErrEndOfStream = errors.New("uplink: capture end of stream")

	// ErrConfigInvalid is returned by StreamConfig.Validate.
	ErrConfigInvalid = errors.New("uplink: invalid stream config")
)

// ConnectError reports a failed connection attempt: resolution failure,
// timeout or refusal.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("uplink: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IOError reports a failure on an established connection.
type IOError struct {
	Op   string
	Addr string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("uplink: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
