package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/roach88/peersync/internal/address"
)

// SessionHandler runs one passive replication session over t for the
// database named dbName. The handler owns t for the duration of the call;
// the connection is closed when it returns.
type SessionHandler func(ctx context.Context, t Transport, dbName string)

// Listener accepts WebSocket replication connections on a TCP port. Peers
// connect to ws://host:port/{db}/_blipsync.
type Listener struct {
	listener net.Listener
	logger   *slog.Logger

	mu     sync.Mutex
	server *http.Server

	// ReadLimit caps inbound frame size. Zero means DefaultReadLimit.
	ReadLimit int64

	// sessions tracks in-flight handlers so Serve can wait for them.
	sessions sync.WaitGroup
}

// Listen binds a TCP listener on addr (host:port; ":0" picks a free port).
func Listen(addr string, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{listener: ln, logger: logger}, nil
}

// Address returns the actual bound address (useful when addr was ":0").
func (l *Listener) Address() string {
	return l.listener.Addr().String()
}

// Serve accepts connections until ctx is cancelled or Close is called.
// Each accepted connection is handed to handler on its own goroutine. ctx
// is passed through to the handler so cancelling it stops every session.
func (l *Listener) Serve(ctx context.Context, handler SessionHandler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		l.handleUpgrade(ctx, w, r, handler)
	})
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	l.mu.Lock()
	l.server = server
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	err := server.Serve(l.listener)
	l.sessions.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops accepting connections. Sessions already running continue
// until their handler returns; Serve waits for them.
func (l *Listener) Close() error {
	l.mu.Lock()
	server := l.server
	l.mu.Unlock()
	if server != nil {
		return server.Close()
	}
	return l.listener.Close()
}

func (l *Listener) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request, handler SessionHandler) {
	dbName, ok := sessionDatabase(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		l.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	l.sessions.Add(1)
	defer l.sessions.Done()

	peer := remoteAddress(r.RemoteAddr, r.URL.Path)
	t := newAcceptedWebSocket(conn, peer, l.ReadLimit)
	l.logger.Debug("accepted replication connection", "peer", peer.String(), "db", dbName)

	// The request context is cancelled as soon as the connection is
	// hijacked, so the session runs under the listener's context instead.
	handler(ctx, t, dbName)
	t.Close(CloseNormal, "")
}

// sessionDatabase extracts {db} from a "/{db}/_blipsync" request path.
func sessionDatabase(path string) (string, bool) {
	rest, ok := strings.CutSuffix(path, "/"+address.SyncEndpoint)
	if !ok {
		return "", false
	}
	db := strings.TrimPrefix(rest, "/")
	if !address.IsValidDatabaseName(db) {
		return "", false
	}
	return db, true
}

func remoteAddress(remote, path string) address.Address {
	addr := address.Address{Scheme: address.SchemeWS, Path: path}
	host, port, err := net.SplitHostPort(remote)
	if err != nil {
		addr.Host = remote
		return addr
	}
	addr.Host = host
	if p, err := strconv.ParseUint(port, 10, 16); err == nil {
		addr.Port = uint16(p)
	}
	return addr
}
