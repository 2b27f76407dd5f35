package store

import (
	"sync"

	"github.com/roach88/autoload/internal/event"
)

// Listener observes every dispatched event after it has been reduced.
//
// Listeners run synchronously on the dispatch path, inside the dispatch lock,
// in registration order. They must be fast and must not dispatch.
type Listener func(ev event.Event)

// Dispatcher is the write side of the store as seen by producers of events.
type Dispatcher interface {
	Dispatch(ev event.Event) event.Event
	DispatchIf(ev event.Event, guard func() bool) (event.Event, bool)
	State() State
}

// Store serializes dispatches and holds the current State.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	state     State
	seq       *SeqClock
	listeners []listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	fn Listener
}

// Option configures a Store.
type Option func(*Store)

// WithSeqClock makes the store continue numbering from an existing clock.
func WithSeqClock(c *SeqClock) Option {
	return func(s *Store) {
		s.seq = c
	}
}

// WithInitialState seeds the store, e.g. from a journal replay.
func WithInitialState(st State) Option {
	return func(s *Store) {
		if st != nil {
			s.state = st
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		state: State{},
		seq:   NewSeqClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch stamps ev with the next sequence number, reduces it into the
// state and notifies listeners. It returns the stamped event.
func (s *Store) Dispatch(ev event.Event) event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchLocked(ev)
}

// DispatchIf dispatches ev only if guard reports true. The guard is
// evaluated under the dispatch lock, so no other dispatch can interleave
// between the check and the state change.
func (s *Store) DispatchIf(ev event.Event, guard func() bool) (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if guard != nil && !guard() {
		return ev, false
	}
	return s.dispatchLocked(ev), true
}

func (s *Store) dispatchLocked(ev event.Event) event.Event {
	ev.Seq = s.seq.Next()
	s.state = Reduce(s.state, ev)
	for _, l := range s.listeners {
		l.fn(ev)
	}
	return ev
}

// State returns the current snapshot. The returned map must not be modified.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Seq returns the sequence number of the last dispatched event.
func (s *Store) Seq() int64 {
	return s.seq.Current()
}

// Subscribe registers l and returns a function removing it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: l})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}
