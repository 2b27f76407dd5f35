package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/autoload/internal/event"
)

// Recorder collects dispatched events. Register Record as a store listener.
//
// Thread-safety: all methods are safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends ev. It has the store.Listener signature.
func (r *Recorder) Record(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Count returns how many events of type t were recorded for loader.
// An empty loader matches every loader.
func (r *Recorder) Count(t event.Type, loader string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t && (loader == "" || ev.Loader == loader) {
			n++
		}
	}
	return n
}

// Types returns the recorded event types for loader, in dispatch order.
func (r *Recorder) Types(loader string) []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Type
	for _, ev := range r.events {
		if loader == "" || ev.Loader == loader {
			out = append(out, ev.Type)
		}
	}
	return out
}

// WaitForCount blocks until Count(t, loader) >= n or ctx is done.
func (r *Recorder) WaitForCount(ctx context.Context, t event.Type, loader string, n int) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if r.Count(t, loader) >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
