package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/peersync/internal/address"
)

var (
	_ Provider  = (*LoopbackProvider)(nil)
	_ Transport = (*loopback)(nil)
)

// loopbackBuffer is the number of frames an endpoint can queue before Send
// blocks.
const loopbackBuffer = 16

// LoopbackProvider creates in-process transports for replicating between
// two local databases. Endpoints created by CreateWebSocket are inert until
// two of them are spliced together with Connect.
type LoopbackProvider struct{}

// NewLoopbackProvider returns a LoopbackProvider.
func NewLoopbackProvider() *LoopbackProvider {
	return &LoopbackProvider{}
}

// CreateWebSocket returns an unconnected loopback endpoint labelled addr.
func (p *LoopbackProvider) CreateWebSocket(addr address.Address) (Transport, error) {
	return newLoopback(addr), nil
}

// Connect splices two endpoints created by this provider so frames sent on
// one are received on the other. Both endpoints' Open calls return once
// they are connected.
func (p *LoopbackProvider) Connect(a, b Transport) error {
	la, ok := a.(*loopback)
	if !ok {
		return errors.New("loopback: first endpoint is not a loopback transport")
	}
	lb, ok := b.(*loopback)
	if !ok {
		return errors.New("loopback: second endpoint is not a loopback transport")
	}
	if la == lb {
		return errors.New("loopback: cannot connect an endpoint to itself")
	}
	if !la.attach(lb) {
		return errors.New("loopback: endpoint already connected")
	}
	if !lb.attach(la) {
		return errors.New("loopback: endpoint already connected")
	}
	close(la.connected)
	close(lb.connected)
	return nil
}

type loopback struct {
	addr address.Address

	// inbox receives frames sent by the peer.
	inbox     chan []byte
	connected chan struct{}
	done      chan struct{}

	mu        sync.Mutex
	peer      *loopback
	closeErr  *CloseError
	closeOnce sync.Once
}

func newLoopback(addr address.Address) *loopback {
	return &loopback{
		addr:      addr,
		inbox:     make(chan []byte, loopbackBuffer),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (l *loopback) attach(peer *loopback) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.peer != nil || l.closeErr != nil {
		return false
	}
	l.peer = peer
	return true
}

func (l *loopback) closed() *CloseError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeErr
}

func (l *loopback) Open(ctx context.Context) error {
	select {
	case <-l.connected:
		if err := l.closed(); err != nil {
			return err
		}
		return nil
	case <-l.done:
		return l.closed()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *loopback) Send(ctx context.Context, frame []byte) error {
	select {
	case <-l.connected:
	default:
		if err := l.closed(); err != nil {
			return err
		}
		return ErrNotConnected
	}
	if err := l.closed(); err != nil {
		return err
	}
	peer := l.peer

	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case peer.inbox <- buf:
		return nil
	case <-peer.done:
		return peer.closed()
	case <-l.done:
		return l.closed()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *loopback) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-l.inbox:
		return frame, nil
	default:
	}

	select {
	case frame := <-l.inbox:
		return frame, nil
	case <-l.done:
		// Frames delivered before the close are still readable.
		select {
		case frame := <-l.inbox:
			return frame, nil
		default:
		}
		return nil, l.closed()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes this endpoint and its peer with the same code, as a
// WebSocket close handshake would.
func (l *loopback) Close(code int, reason string) error {
	l.shutdown(&CloseError{Code: code, Reason: reason})
	l.mu.Lock()
	peer := l.peer
	l.mu.Unlock()
	if peer != nil {
		peer.shutdown(&CloseError{Code: code, Reason: reason})
	}
	return nil
}

func (l *loopback) shutdown(err *CloseError) {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closeErr = err
		l.mu.Unlock()
		close(l.done)
	})
}

func (l *loopback) Address() address.Address {
	return l.addr
}
