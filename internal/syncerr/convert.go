package syncerr

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// closeCoder is implemented by transport errors that carry a WebSocket
// close code.
type closeCoder interface {
	CloseCode() int
}

// httpStatuser is implemented by handshake errors that carry the HTTP
// status returned by the server.
type httpStatuser interface {
	HTTPStatus() int
}

// Convert maps an arbitrary Go error onto an Error, recording err's text in
// the log. Errors that already wrap an Error are returned unchanged.
//
// Mapping, first match wins:
//   - Error in the chain: returned as is
//   - close code / HTTP handshake status: WebSocketDomain
//   - *net.DNSError: NetworkDomain, UnknownHost if not found else DNSFailure
//   - syscall.Errno: POSIXDomain
//   - timeouts (net.Error, context.DeadlineExceeded): POSIXDomain ETIMEDOUT
//   - anything else: LiteCoreDomain UnexpectedError
func (l *MessageLog) Convert(err error) Error {
	if err == nil {
		return Error{}
	}
	if e, ok := As(err); ok {
		return e
	}

	msg := err.Error()

	var cc closeCoder
	if errors.As(err, &cc) {
		return l.Record(WebSocketDomain, cc.CloseCode(), msg)
	}
	var hs httpStatuser
	if errors.As(err, &hs) {
		return l.Record(WebSocketDomain, hs.HTTPStatus(), msg)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		code := NetworkDNSFailure
		if dnsErr.IsNotFound {
			code = NetworkUnknownHost
		}
		return l.Record(NetworkDomain, code, msg)
	}

	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return l.Record(POSIXDomain, int(errno), msg)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return l.Record(POSIXDomain, ETIMEDOUT, msg)
	}

	return l.Record(LiteCoreDomain, UnexpectedError, msg)
}
