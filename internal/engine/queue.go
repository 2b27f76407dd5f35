package engine

import (
	"sync"

	"github.com/roach88/autoload/internal/event"
)

// command is a dispatched command awaiting the Run loop. fence holds the
// loader's generations as of dispatch, so stale work can be recognised.
type command struct {
	ev    event.Event
	fence generation
}

// inbox carries commands from the dispatch path to the Run loop.
//
// push never blocks, so a dispatch can't stall on a busy loop. The loop
// takes everything pending in one drain and swaps buffers with the inbox.
type inbox struct {
	mu      sync.Mutex
	pending []command
	closed  bool
	wake    chan struct{} // cap 1; pushes coalesce into one wakeup
}

func newInbox() *inbox {
	return &inbox{
		pending: make([]command, 0, 64),
		wake:    make(chan struct{}, 1),
	}
}

// push appends c. It reports false once the inbox is closed.
func (b *inbox) push(c command) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.pending = append(b.pending, c)
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

// drain hands every pending command to the caller in dispatch order and
// takes buf, emptied, as the new backing store. open is false once the inbox
// is closed; commands pushed before close are still returned.
func (b *inbox) drain(buf []command) (batch []command, open bool) {
	clear(buf)
	b.mu.Lock()
	defer b.mu.Unlock()
	batch, b.pending = b.pending, buf[:0]
	return batch, !b.closed
}

// ready fires after a push and is closed by close.
func (b *inbox) ready() <-chan struct{} {
	return b.wake
}

// close rejects further pushes and wakes the loop. Idempotent.
func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.wake)
	}
}
