package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/roach88/peersync/internal/status"
)

// StatusRecorder collects status changes delivered on other goroutines and
// lets a test wait for a condition on them.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StatusRecorder struct {
	mu       sync.Mutex
	statuses []status.Status
	changed  chan struct{}
}

// NewStatusRecorder creates an empty recorder.
func NewStatusRecorder() *StatusRecorder {
	return &StatusRecorder{changed: make(chan struct{})}
}

// Record appends st and wakes any WaitFor callers.
func (r *StatusRecorder) Record(st status.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
	close(r.changed)
	r.changed = make(chan struct{})
}

// Snapshot returns a copy of everything recorded so far.
func (r *StatusRecorder) Snapshot() []status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.Status(nil), r.statuses...)
}

// Len returns the number of statuses recorded.
func (r *StatusRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

// Last returns the most recent status, or the zero Status.
func (r *StatusRecorder) Last() status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return status.Status{}
	}
	return r.statuses[len(r.statuses)-1]
}

// WaitFor blocks until pred holds for the recorded statuses, failing the
// test after timeout.
func (r *StatusRecorder) WaitFor(t testing.TB, timeout time.Duration, pred func([]status.Status) bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		r.mu.Lock()
		ok := pred(r.statuses)
		changed := r.changed
		r.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("condition not met after %s; recorded %v", timeout, r.Snapshot())
			return
		}
	}
}

// WaitStopped waits until a Stopped status has been recorded and returns
// it.
func (r *StatusRecorder) WaitStopped(t testing.TB, timeout time.Duration) status.Status {
	t.Helper()
	r.WaitFor(t, timeout, func(all []status.Status) bool {
		return len(all) > 0 && all[len(all)-1].IsStopped()
	})
	return r.Last()
}
