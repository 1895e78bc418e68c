package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/roach88/peersync/internal/address"
)

// Compile-time interface checks.
var (
	_ Provider  = (*WebSocketProvider)(nil)
	_ Transport = (*webSocket)(nil)
)

// DefaultReadLimit caps the size of a single inbound frame.
const DefaultReadLimit = 16 << 20

// maxCloseReason is the longest close reason a close frame can carry.
const maxCloseReason = 123

// wsConn abstracts the WebSocket connection so the transport can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// WebSocketProvider creates client transports that dial remote peers.
type WebSocketProvider struct {
	// HTTPClient is used for the upgrade request. Nil uses http.DefaultClient.
	HTTPClient *http.Client

	// Header is added to every upgrade request.
	Header http.Header

	// ReadLimit caps inbound frame size. Zero means DefaultReadLimit.
	ReadLimit int64
}

// CreateWebSocket returns an unopened transport for addr. The connection is
// dialed by Open.
func (p *WebSocketProvider) CreateWebSocket(addr address.Address) (Transport, error) {
	if !address.IsValidScheme(addr.Scheme) {
		return nil, fmt.Errorf("websocket provider: unsupported scheme %q", addr.Scheme)
	}
	t := &webSocket{addr: addr, readLimit: p.ReadLimit}
	opts := &websocket.DialOptions{HTTPClient: p.HTTPClient, HTTPHeader: p.Header}
	t.dial = func(ctx context.Context) (wsConn, error) {
		conn, resp, err := websocket.Dial(ctx, DialURL(addr), opts) //nolint:bodyclose // websocket.Dial closes the response body internally
		if err != nil {
			if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
			}
			return nil, err
		}
		return conn, nil
	}
	return t, nil
}

// DialURL renders the URL dialed for addr. The blip schemes are the BLIP
// sub-protocol spelling of ws and wss.
func DialURL(addr address.Address) string {
	scheme := addr.Scheme
	switch scheme {
	case address.SchemeBlip:
		scheme = address.SchemeWS
	case address.SchemeBlips:
		scheme = address.SchemeWSS
	}
	host := net.JoinHostPort(addr.Host, strconv.Itoa(int(addr.Port)))
	return scheme + "://" + host + addr.Path
}

// webSocket is a Transport over a coder/websocket connection, either dialed
// (dial != nil) or already accepted by a Listener.
type webSocket struct {
	addr      address.Address
	readLimit int64
	dial      func(ctx context.Context) (wsConn, error)

	mu     sync.Mutex
	conn   wsConn
	closed *CloseError
}

func newAcceptedWebSocket(conn wsConn, addr address.Address, readLimit int64) *webSocket {
	t := &webSocket{addr: addr, readLimit: readLimit}
	t.setConn(conn)
	return t
}

func (t *webSocket) setConn(conn wsConn) {
	limit := t.readLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)
	t.conn = conn
}

func (t *webSocket) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.closed != nil {
		err := t.closed
		t.mu.Unlock()
		return err
	}
	if t.conn != nil || t.dial == nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", DialURL(t.addr), err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		// Closed while dialing.
		conn.Close(websocket.StatusCode(t.closed.Code), t.closed.Reason)
		return t.closed
	}
	t.setConn(conn)
	return nil
}

func (t *webSocket) current() (wsConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		if t.closed != nil {
			return nil, t.closed
		}
		return nil, ErrNotConnected
	}
	return t.conn, nil
}

func (t *webSocket) Send(ctx context.Context, frame []byte) error {
	conn, err := t.current()
	if err != nil {
		return err
	}
	return convertWSError(conn.Write(ctx, websocket.MessageBinary, frame))
}

func (t *webSocket) Receive(ctx context.Context) ([]byte, error) {
	conn, err := t.current()
	if err != nil {
		return nil, err
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, convertWSError(err)
	}
	return data, nil
}

func (t *webSocket) Close(code int, reason string) error {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	t.mu.Lock()
	if t.closed != nil {
		t.mu.Unlock()
		return nil
	}
	t.closed = &CloseError{Code: code, Reason: reason}
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusCode(code), reason)
	if websocket.CloseStatus(err) != -1 || errors.Is(err, net.ErrClosed) {
		// The peer closed first; that is still a successful close.
		return nil
	}
	return err
}

func (t *webSocket) Address() address.Address {
	return t.addr
}

// convertWSError turns coder/websocket close errors into *CloseError so the
// engine does not depend on the WebSocket library.
func convertWSError(err error) error {
	if err == nil {
		return nil
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: int(ce.Code), Reason: ce.Reason}
	}
	return err
}
