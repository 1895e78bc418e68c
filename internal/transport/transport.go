// Package transport provides the message-oriented byte streams that
// replication engines talk over.
//
// Two providers satisfy the same Provider interface so the replication
// controller does not care which one it is using:
//
//   - WebSocketProvider dials real ws/wss (and blip/blips) peers using
//     github.com/coder/websocket. Listener is its server-side counterpart.
//   - LoopbackProvider creates in-process endpoints that are spliced
//     together with Connect; no sockets are involved.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/peersync/internal/address"
)

// Transport is one end of a bidirectional, message-framed connection.
//
// Send and Receive may be called concurrently with each other, but each
// must only be called from one goroutine at a time. Close may be called
// from any goroutine, more than once.
type Transport interface {
	// Open establishes the connection. For dialing transports this performs
	// the handshake; for accepted or loopback transports it waits until the
	// peer is attached. Blocks until connected, ctx is done or the
	// transport is closed.
	Open(ctx context.Context) error

	// Send delivers one frame to the peer.
	Send(ctx context.Context, frame []byte) error

	// Receive returns the next frame from the peer. After the peer closes,
	// Receive returns a *CloseError carrying the peer's close code.
	Receive(ctx context.Context) ([]byte, error)

	// Close closes the connection with a WebSocket close code.
	Close(code int, reason string) error

	// Address returns the address of the peer.
	Address() address.Address
}

// Provider creates transports for peer addresses.
type Provider interface {
	CreateWebSocket(addr address.Address) (Transport, error)
}

// WebSocket close codes used by the transports.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
	CloseAbnormal      = 1006
	CloseInternalError = 1011
)

// ErrNotConnected is returned when sending or receiving before Open.
var ErrNotConnected = errors.New("transport: not connected")

// CloseError reports that the connection was closed, by either side.
type CloseError struct {
	Code   int
	Reason string
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed (%d)", e.Code)
	}
	return fmt.Sprintf("connection closed (%d): %s", e.Code, e.Reason)
}

// CloseCode returns the WebSocket close code.
func (e *CloseError) CloseCode() int {
	return e.Code
}

// IsNormalClose reports whether err is an orderly close (code 1000).
// Uses errors.As to handle wrapped errors.
func IsNormalClose(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce) && ce.Code == CloseNormal
}

// HandshakeError reports a WebSocket upgrade rejected by the server.
type HandshakeError struct {
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed with HTTP status %d: %v", e.StatusCode, e.Err)
}

// HTTPStatus returns the status code the server answered the upgrade with.
func (e *HandshakeError) HTTPStatus() int {
	return e.StatusCode
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
