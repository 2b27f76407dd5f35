package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/autoload/internal/event"
)

// generation counts the STOP_REFRESH/RESET commands observed for a loader.
//
// Every fetch captures the generation current when its triggering command
// was dispatched and re-checks it, under the store's dispatch lock, before
// dispatching anything. stop moves on STOP_REFRESH and RESET and fences
// timer-driven fetches; reset moves on RESET only and fences every fetch.
type generation struct {
	stop  uint64
	reset uint64
}

// refreshTask is a live auto-refresh cadence for one loader.
type refreshTask struct {
	id        string
	loader    string
	start     event.Event
	fence     generation
	startedAt time.Time

	cancel context.CancelFunc

	// loads receives manual LOAD commands folded into the cadence.
	// One slot: a load arriving while one is pending is absorbed.
	loads chan command

	// parked is true while the task waits in its race.
	parked atomic.Bool

	mu    sync.Mutex
	fired <-chan time.Time
}

// park marks the task as waiting on fired (nil when it has no timer).
func (t *refreshTask) park(fired <-chan time.Time) {
	t.mu.Lock()
	t.fired = fired
	t.mu.Unlock()
	t.parked.Store(true)
}

func (t *refreshTask) unpark() {
	t.parked.Store(false)
	t.mu.Lock()
	t.fired = nil
	t.mu.Unlock()
}

// quiescent reports whether the task is waiting with nothing ready to
// receive.
func (t *refreshTask) quiescent() bool {
	if !t.parked.Load() || len(t.loads) > 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired == nil || len(t.fired) == 0
}

// fetchSlot serializes fetches for one loader.
type fetchSlot struct {
	sem chan struct{}

	mu      sync.Mutex
	pending *command
}

func newFetchSlot() *fetchSlot {
	return &fetchSlot{sem: make(chan struct{}, 1)}
}

// acquire blocks until the slot is free or ctx is done.
func (s *fetchSlot) acquire(ctx context.Context) bool {
	select {
	case s.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *fetchSlot) release() {
	<-s.sem
}

// park records q as the single load waiting for the slot. If a load is
// already waiting, the later-dispatched of the two is kept and park reports
// false: the waiting goroutine will run it.
func (s *fetchSlot) park(q command) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		if q.ev.Seq >= s.pending.ev.Seq {
			s.pending = &q
		}
		return false
	}
	s.pending = &q
	return true
}

// take removes and returns the waiting load.
func (s *fetchSlot) take() (command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return command{}, false
	}
	q := *s.pending
	s.pending = nil
	return q, true
}

// taskRegistry maps loader names to their live refresh task, fetch slot and
// generations.
//
// Tasks are inserted and removed only by the Run loop, so check-then-insert
// needs no further coordination. Generations are bumped from the dispatch
// path. Lock order: store dispatch lock, then registry lock.
//
// Generation entries outlive resets; each is two counters, which is
// acceptable for the expected number of distinct loader names.
type taskRegistry struct {
	mu    sync.Mutex
	tasks map[string]*refreshTask
	slots map[string]*fetchSlot
	gens  map[string]generation
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{
		tasks: make(map[string]*refreshTask),
		slots: make(map[string]*fetchSlot),
		gens:  make(map[string]generation),
	}
}

// observe bumps the generations for STOP_REFRESH and RESET and returns the
// loader's generation after ev.
func (r *taskRegistry) observe(ev event.Event) generation {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.gens[ev.Loader]
	switch ev.Type {
	case event.StopRefresh:
		g.stop++
		r.gens[ev.Loader] = g
	case event.Reset:
		g.stop++
		g.reset++
		r.gens[ev.Loader] = g
	}
	return g
}

func (r *taskRegistry) current(loader string) generation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[loader]
}

func (r *taskRegistry) live(loader string) *refreshTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[loader]
}

// insert adds t unless a task is already live for its loader.
func (r *taskRegistry) insert(t *refreshTask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.loader]; exists {
		return false
	}
	r.tasks[t.loader] = t
	return true
}

func (r *taskRegistry) remove(loader string) *refreshTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tasks[loader]
	delete(r.tasks, loader)
	return t
}

// removeAll empties the task table and returns what it held.
func (r *taskRegistry) removeAll() []*refreshTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*refreshTask, 0, len(r.tasks))
	for name, t := range r.tasks {
		out = append(out, t)
		delete(r.tasks, name)
	}
	return out
}

func (r *taskRegistry) slot(loader string) *fetchSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[loader]
	if !ok {
		s = newFetchSlot()
		r.slots[loader] = s
	}
	return s
}

// dropSlot forgets the loader's slot. Fetches holding the old slot finish
// on it; their results are fenced by the reset generation.
func (r *taskRegistry) dropSlot(loader string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, loader)
}

// TaskInfo describes a live auto-refresh task.
type TaskInfo struct {
	ID        string    `json:"id"`
	Loader    string    `json:"loader"`
	StartedAt time.Time `json:"started_at"`
	Parked    bool      `json:"parked"`
}

func (r *taskRegistry) snapshot() []TaskInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TaskInfo, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, TaskInfo{
			ID:        t.id,
			Loader:    t.loader,
			StartedAt: t.startedAt,
			Parked:    t.parked.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Loader < out[j].Loader })
	return out
}

func (r *taskRegistry) allParked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if !t.quiescent() {
			return false
		}
	}
	return true
}
