package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/autoload/internal/clock"
)

// Epoch is the default start time of a ManualClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock is a clock.Clock whose time only moves when Advance or Set is
// called. Timers fire synchronously inside Advance, in deadline order.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

var _ clock.Clock = (*ManualClock)(nil)

// NewManualClock creates a clock reading start. A zero start means Epoch.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = Epoch
	}
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTimer creates a timer firing once the clock reaches now+d.
// A non-positive d fires immediately.
func (c *ManualClock) NewTimer(d time.Duration) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{
		clock:    c,
		ch:       make(chan time.Time, 1),
		deadline: c.now.Add(d),
	}
	if d <= 0 {
		t.ch <- c.now
		return t
	}
	t.active = true
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has been reached.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(c.now.Add(d))
}

// Set moves the clock to t. Moving backwards never fires timers.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(t)
}

func (c *ManualClock) setLocked(t time.Time) {
	c.now = t

	remaining := c.timers[:0]
	var due []*manualTimer
	for _, timer := range c.timers {
		if !timer.deadline.After(c.now) {
			due = append(due, timer)
			continue
		}
		remaining = append(remaining, timer)
	}
	for i := len(remaining); i < len(c.timers); i++ {
		c.timers[i] = nil
	}
	c.timers = remaining

	sortByDeadline(due)
	for _, timer := range due {
		timer.active = false
		timer.ch <- timer.deadline
	}
}

// Timers returns the number of pending timers.
func (c *ManualClock) Timers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// WaitForTimers blocks until at least n timers are pending or ctx is done.
func (c *ManualClock) WaitForTimers(ctx context.Context, n int) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if c.Timers() >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type manualTimer struct {
	clock    *ManualClock
	ch       chan time.Time
	deadline time.Time
	active   bool
}

func (t *manualTimer) C() <-chan time.Time { return t.ch }

func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if !t.active {
		return false
	}
	t.active = false
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			break
		}
	}
	return true
}

func sortByDeadline(timers []*manualTimer) {
	for i := 1; i < len(timers); i++ {
		for j := i; j > 0 && timers[j].deadline.Before(timers[j-1].deadline); j-- {
			timers[j], timers[j-1] = timers[j-1], timers[j]
		}
	}
}
