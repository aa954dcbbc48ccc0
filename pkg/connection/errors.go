package connection

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrNotConnected is returned by operations that need a live transport handle
	ErrNotConnected = errors.New("not connected")
	// ErrTimeout is reported by a Handle when no frame arrived within the receive timeout
	ErrTimeout = errors.New("receive timeout")
	// ErrClosed is reported by a Handle once it has been closed cleanly
	ErrClosed = errors.New("transport closed")
	// ErrDisconnected is returned when Connect is called after Disconnect
	ErrDisconnected = errors.New("connection disconnected")
	// ErrAlreadyRunning is returned when Connect is called while another Connect is active
	ErrAlreadyRunning = errors.New("connection already running")
	// ErrAuthorizerRequired is returned when subscribing to a protected channel without an Authorizer
	ErrAuthorizerRequired = errors.New("authorizer required for protected channel")
	// ErrSubscriptionFailed wraps authorization failures during subscribe
	ErrSubscriptionFailed = errors.New("subscription failed")
)

// TransportError is a low-level I/O failure while reading from or writing to
// the transport.
type TransportError struct {
	Op  string // "open", "read" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
