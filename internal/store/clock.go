package store

import "sync/atomic"

// SeqClock is the monotonic logical clock used to stamp dispatched events.
//
// Ordering of the dispatch stream is defined by Seq alone, never by wall time.
type SeqClock struct {
	seq atomic.Int64
}

// NewSeqClock creates a clock starting at 0. The first Next returns 1.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// NewSeqClockAt creates a clock resuming after start.
func NewSeqClockAt(start int64) *SeqClock {
	c := &SeqClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *SeqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *SeqClock) Current() int64 {
	return c.seq.Load()
}
