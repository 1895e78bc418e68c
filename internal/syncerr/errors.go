package syncerr

import (
	"errors"
	"fmt"
	"strings"
)

// Domain identifies the subsystem an error code belongs to.
type Domain int

const (
	// LiteCoreDomain holds errors raised by the replication core itself.
	LiteCoreDomain Domain = iota + 1

	// POSIXDomain holds errno values.
	POSIXDomain

	// SQLiteDomain holds SQLite result codes.
	SQLiteDomain

	// FleeceDomain holds document encoding errors.
	FleeceDomain

	// NetworkDomain holds network-level failures (see Network* codes).
	NetworkDomain

	// WebSocketDomain holds WebSocket close codes and HTTP handshake statuses.
	WebSocketDomain

	maxDomainPlus1
)

var domainNames = [...]string{
	LiteCoreDomain:  "litecore",
	POSIXDomain:     "posix",
	SQLiteDomain:    "sqlite",
	FleeceDomain:    "fleece",
	NetworkDomain:   "network",
	WebSocketDomain: "websocket",
}

// String returns the lowercase domain name.
func (d Domain) String() string {
	if !d.valid() {
		return fmt.Sprintf("domain(%d)", int(d))
	}
	return domainNames[d]
}

func (d Domain) valid() bool {
	return d >= LiteCoreDomain && d < maxDomainPlus1
}

// ParseDomain converts a domain name (case-insensitive) to a Domain.
func ParseDomain(name string) (Domain, error) {
	for d := LiteCoreDomain; d < maxDomainPlus1; d++ {
		if strings.EqualFold(name, domainNames[d]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown error domain %q", name)
}

// LiteCore domain codes.
const (
	AssertionFailed  = 1
	Unimplemented    = 2
	NotOpen          = 6
	NotFound         = 7
	Conflict         = 8
	InvalidParameter = 9
	UnexpectedError  = 10
	CantOpenFile     = 11
	IOError          = 12
	Busy             = 16
	Unsupported      = 19
	WrongFormat      = 21
	RemoteError      = 26
	BadDocID         = 29
)

var liteCoreMessages = map[int]string{
	AssertionFailed:  "internal assertion failed",
	Unimplemented:    "unimplemented",
	NotOpen:          "database not open",
	NotFound:         "not found",
	Conflict:         "conflict",
	InvalidParameter: "invalid parameter",
	UnexpectedError:  "unexpected exception",
	CantOpenFile:     "can't open file",
	IOError:          "file I/O error",
	Busy:             "database busy/locked",
	Unsupported:      "unsupported operation",
	WrongFormat:      "wrong format",
	RemoteError:      "error from remote peer",
	BadDocID:         "invalid document ID",
}

// Network domain codes.
const (
	NetworkDNSFailure = iota + 1
	NetworkUnknownHost
	NetworkTimeout
	NetworkInvalidURL
	NetworkTooManyRedirects
	NetworkTLSHandshakeFailed
	NetworkTLSCertExpired
	NetworkTLSCertUntrusted
	NetworkTLSClientCertRequired
	NetworkTLSClientCertRejected
)

var networkMessages = map[int]string{
	NetworkDNSFailure:            "DNS lookup failed",
	NetworkUnknownHost:           "unknown hostname",
	NetworkTimeout:               "connection timed out",
	NetworkInvalidURL:            "invalid URL",
	NetworkTooManyRedirects:      "too many HTTP redirects",
	NetworkTLSHandshakeFailed:    "TLS handshake failed",
	NetworkTLSCertExpired:        "server TLS certificate expired",
	NetworkTLSCertUntrusted:      "server TLS certificate untrusted",
	NetworkTLSClientCertRequired: "TLS client certificate required",
	NetworkTLSClientCertRejected: "TLS client certificate rejected",
}

// WebSocket domain codes. Values below 1000 are HTTP statuses from a
// failed handshake; 1000 and up are WebSocket close codes.
const (
	WebSocketCloseNormal           = 1000
	WebSocketCloseGoingAway        = 1001
	WebSocketCloseProtocolError    = 1002
	WebSocketCloseDataError        = 1003
	WebSocketCloseAbnormal         = 1006
	WebSocketCloseBadMessage       = 1007
	WebSocketClosePolicyError      = 1008
	WebSocketCloseMessageTooBig    = 1009
	WebSocketCloseMissingExtension = 1010
	WebSocketCloseCantFulfill      = 1011
)

// Error is a replication error value. The zero value means "no error".
//
// Error is comparable and safe to copy. Its message lives in the
// MessageLog that created it and is resolved lazily by Message.
type Error struct {
	Domain Domain `json:"domain"`
	Code   int    `json:"code"`

	// Info is the MessageLog sequence number of the message, or 0.
	Info uint32 `json:"info,omitempty"`

	log *MessageLog
}

// IsZero reports whether e represents "no error".
func (e Error) IsZero() bool {
	return e.Code == 0
}

// Message returns the recorded message for e, falling back to the default
// description for its domain and code.
func (e Error) Message() string {
	if e.Code == 0 {
		return ""
	}
	if !e.Domain.valid() {
		return "unknown error domain"
	}
	if e.log != nil {
		if msg := e.log.Lookup(e.Info); msg != "" {
			return msg
		}
	}
	return defaultMessage(e.Domain, e.Code)
}

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Domain, e.Code, e.Message())
}

// Is matches another Error with the same domain and code, ignoring the
// message. This lets callers write errors.Is(err, syncerr.Error{...}).
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	if !ok {
		return false
	}
	return e.Domain == t.Domain && e.Code == t.Code
}

func defaultMessage(d Domain, code int) string {
	var msg string
	switch d {
	case LiteCoreDomain:
		msg = liteCoreMessages[code]
	case POSIXDomain:
		msg = posixMessage(code)
	case NetworkDomain:
		msg = networkMessages[code]
	case WebSocketDomain:
		msg = webSocketMessage(code)
	}
	if msg == "" {
		msg = fmt.Sprintf("unknown error (%d)", code)
	}
	return msg
}

func webSocketMessage(code int) string {
	switch {
	case code == WebSocketCloseNormal:
		return "normal close"
	case code == WebSocketCloseGoingAway:
		return "peer going away"
	case code == WebSocketCloseProtocolError:
		return "protocol error"
	case code == WebSocketCloseAbnormal:
		return "connection closed abnormally"
	case code > 0 && code < 1000:
		return fmt.Sprintf("HTTP status %d", code)
	}
	return ""
}

// As extracts an Error from err's chain. It returns the zero Error and
// false when err does not wrap one.
func As(err error) (Error, bool) {
	var e Error
	if errors.As(err, &e) {
		return e, true
	}
	return Error{}, false
}

// IsInvalidParameter reports whether err is a LiteCore InvalidParameter
// error. Uses errors.As to handle wrapped errors.
func IsInvalidParameter(err error) bool {
	e, ok := As(err)
	return ok && e.Domain == LiteCoreDomain && e.Code == InvalidParameter
}
