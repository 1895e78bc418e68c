package engine

import (
	"sync"

	"github.com/roach88/peersync/internal/status"
)

// statusQueue is a thread-safe FIFO of status changes waiting to be
// delivered to the delegate.
//
// The run loop enqueues without blocking so a slow delegate never stalls
// replication; the notifier goroutine drains the queue in order. The queue
// uses a channel for signaling to enable context-aware waiting.
type statusQueue struct {
	mu      sync.Mutex
	pending []status.Status
	closed  bool
	signal  chan struct{} // Signals availability (buffered, size 1)
}

func newStatusQueue() *statusQueue {
	return &statusQueue{
		pending: make([]status.Status, 0, 8),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a status to the back of the queue.
// Returns false if the queue is closed.
func (q *statusQueue) Enqueue(st status.Status) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, st)

	// Non-blocking; the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front status without blocking.
func (q *statusQueue) TryDequeue() (status.Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return status.Status{}, false
	}

	st := q.pending[0]
	q.pending[0] = status.Status{} // release the *Error for GC
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	return st, true
}

// Wait returns a channel that signals when statuses may be available.
// The channel is closed once the queue is closed.
func (q *statusQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *statusQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close signals that no more statuses will be enqueued. Statuses already
// queued can still be dequeued.
func (q *statusQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
