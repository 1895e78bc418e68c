package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/peersync/internal/syncerr"
	"github.com/roach88/peersync/internal/transport"
)

// ProtocolError represents a failure of the replication protocol itself,
// as opposed to a transport or database failure.
//
// Protocol errors include:
//   - Malformed frame: bytes that do not decode as a frame
//   - Unexpected frame: a valid frame arriving out of turn
//   - Remote error: the peer reported a failure with FrameError
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// Remote carries the peer's error for ErrCodeRemoteError.
	Remote *WireError

	Err error
}

// ProtocolErrorCode categorizes protocol errors.
type ProtocolErrorCode string

const (
	// ErrCodeMalformedFrame indicates bytes that could not be decoded.
	ErrCodeMalformedFrame ProtocolErrorCode = "MALFORMED_FRAME"

	// ErrCodeUnexpectedFrame indicates a frame that is not valid in the
	// current protocol state.
	ErrCodeUnexpectedFrame ProtocolErrorCode = "UNEXPECTED_FRAME"

	// ErrCodeRemoteError indicates the peer reported an error.
	ErrCodeRemoteError ProtocolErrorCode = "REMOTE_ERROR"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsMalformedFrame returns true if the error is a frame decoding error.
// Uses errors.As to handle wrapped errors.
func IsMalformedFrame(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeMalformedFrame
	}
	return false
}

// IsUnexpectedFrame returns true if the error is an out-of-turn frame.
func IsUnexpectedFrame(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeUnexpectedFrame
	}
	return false
}

// IsRemoteError returns true if the peer reported the error.
func IsRemoteError(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeRemoteError
	}
	return false
}

// NewMalformedFrameError creates a ProtocolError for undecodable bytes.
func NewMalformedFrameError(err error) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeMalformedFrame,
		Message: "frame could not be decoded",
		Err:     err,
	}
}

// NewUnexpectedFrameError creates a ProtocolError for a frame of kind got
// while the engine was waiting for want.
func NewUnexpectedFrameError(got, want FrameKind) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeUnexpectedFrame,
		Message: fmt.Sprintf("received %s frame while waiting for %s", got, want),
	}
}

// NewRemoteError creates a ProtocolError for a FrameError from the peer.
func NewRemoteError(we *WireError) *ProtocolError {
	msg := "peer reported an error"
	if we != nil && we.Message != "" {
		msg = we.Message
	}
	return &ProtocolError{
		Code:    ErrCodeRemoteError,
		Message: msg,
		Remote:  we,
	}
}

// convertError maps an engine failure onto the replication error model.
// Protocol violations become WebSocket protocol errors and remote failures
// keep the peer's domain and code when it sent one.
func convertError(log *syncerr.MessageLog, err error) syncerr.Error {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		switch pe.Code {
		case ErrCodeRemoteError:
			if pe.Remote != nil && pe.Remote.Code != 0 {
				return log.Record(syncerr.Domain(pe.Remote.Domain), pe.Remote.Code, pe.Message)
			}
			return log.Record(syncerr.LiteCoreDomain, syncerr.RemoteError, pe.Message)
		default:
			return log.Record(syncerr.WebSocketDomain, transport.CloseProtocolError, pe.Error())
		}
	}
	return log.Convert(err)
}

// wireError is the inverse of convertError for errors sent to the peer.
func wireError(e syncerr.Error) *WireError {
	return &WireError{Domain: int(e.Domain), Code: e.Code, Message: e.Message()}
}
