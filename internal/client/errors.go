package client

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotOpen is wrapped by SendError when the connection is not open.
	ErrNotOpen = errors.New("not connected to server")
	// ErrAlreadyStarted is returned by a second call to Connect.
	ErrAlreadyStarted = errors.New("transport already started")
	// ErrClosed is returned when Close interrupts Connect.
	ErrClosed = errors.New("transport closed")
	// ErrHandshakeRejected is wrapped when the server does not switch protocols.
	ErrHandshakeRejected = errors.New("upgrade rejected")
)

// ConnectionError reports a failure to establish the session. It is fatal.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports an outbound event that was not written. It is never retried.
type SendError struct {
	Event string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send %s: %v", e.Event, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
