package engine

import "sync/atomic"

// Clock numbers the frames an engine sends.
//
// Every outgoing frame is stamped with a strictly increasing number from
// this clock, and replies carry the number of the request they answer in
// Frame.ReplyTo. This lets the active side reject stale or misrouted
// replies without wall-clock timeouts.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next frame number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last number handed out without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
