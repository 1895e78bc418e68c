package syncerr

import "sync"

// DefaultCapacity is the number of recent messages a MessageLog keeps.
const DefaultCapacity = 10

// firstInfo is the sequence number assigned to the first recorded message.
// Starting well above zero keeps Info == 0 free to mean "no message".
const firstInfo = 1000

// MessageLog is a bounded FIFO of recent error messages, indexed by a
// monotonically increasing sequence number.
//
// Thread-safety: all methods are safe for concurrent use; a single mutex
// guards the buffer. Memory is bounded by the capacity regardless of how
// many errors are recorded.
type MessageLog struct {
	mu       sync.Mutex
	capacity int
	first    uint32   // sequence number of messages[0]
	messages []string // oldest first
}

// NewMessageLog creates a log holding at most capacity messages.
// A non-positive capacity selects DefaultCapacity.
func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageLog{
		capacity: capacity,
		first:    firstInfo,
		messages: make([]string, 0, capacity),
	}
}

// Record creates an Error for (domain, code). A non-empty message is
// appended to the log, evicting the oldest entry when full, and referenced
// from the returned Error's Info field.
func (l *MessageLog) Record(domain Domain, code int, message string) Error {
	e := Error{Domain: domain, Code: code, log: l}
	if message == "" {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.messages) == l.capacity {
		copy(l.messages, l.messages[1:])
		l.messages = l.messages[:len(l.messages)-1]
		l.first++
	}
	l.messages = append(l.messages, message)
	e.Info = l.first + uint32(len(l.messages)) - 1
	return e
}

// Lookup returns the message recorded under info, or "" if it was never
// recorded or has since been evicted.
func (l *MessageLog) Lookup(info uint32) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if info < l.first {
		return ""
	}
	idx := info - l.first
	if idx >= uint32(len(l.messages)) {
		return ""
	}
	return l.messages[idx]
}

// Len returns the number of messages currently retained.
func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

var defaultLog = NewMessageLog(DefaultCapacity)

// DefaultLog returns the package-level log used by Make.
func DefaultLog() *MessageLog {
	return defaultLog
}

// Make records an error in the default log.
func Make(domain Domain, code int, message string) Error {
	return defaultLog.Record(domain, code, message)
}
