package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/autoload/internal/event"
)

// trigger is what caused a fetch. It selects which generation fences the
// FETCH_DATA_REQUEST.
type trigger int

const (
	// triggerTimer is a cadence tick or a loadImmediately fetch. Any
	// STOP_REFRESH or RESET since the task started suppresses it.
	triggerTimer trigger = iota

	// triggerLoad is a manual LOAD. Only a RESET since the LOAD suppresses it.
	triggerLoad
)

func (t trigger) String() string {
	if t == triggerTimer {
		return "timer"
	}
	return "load"
}

// loadOnce runs a single fetch for a LOAD with no live auto-refresh task.
//
// Fetches for one loader never overlap. While one runs, at most one further
// LOAD waits for the slot; a newer LOAD replaces the waiting one.
func (e *Engine) loadOnce(q command) {
	slot := e.registry.slot(q.ev.Loader)
	if !slot.park(q) {
		e.logger.Debug("load merged into waiting load", "loader", q.ev.Loader)
		return
	}

	e.inflight.Add(1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.inflight.Add(-1)

		if !slot.acquire(e.ctx) {
			slot.take()
			return
		}
		defer slot.release()

		next, ok := slot.take()
		if !ok {
			return
		}
		e.execute(next.ev.Loader, next.ev.Fetch, next.fence, triggerLoad)
	}()
}

// fetchInTask runs a fetch from an auto-refresh task, holding the loader's
// fetch slot. It returns once the outcome has been dispatched or discarded,
// or false if ctx ended while waiting for the slot.
func (e *Engine) fetchInTask(ctx context.Context, loader string, fetch event.FetchFunc, fence generation, trig trigger) bool {
	e.inflight.Add(1)
	defer e.inflight.Add(-1)

	slot := e.registry.slot(loader)
	if !slot.acquire(ctx) {
		return false
	}
	defer slot.release()

	e.execute(loader, fetch, fence, trig)
	return true
}

// execute dispatches FETCH_DATA_REQUEST, calls fetch and dispatches its
// outcome. Each dispatch is checked against the loader's generation under
// the store lock; a stale dispatch is dropped and counted.
//
// fetch runs on the engine context, so stopping a task does not abort a
// call already in progress.
func (e *Engine) execute(loader string, fetch event.FetchFunc, fence generation, trig trigger) {
	requestGuard := func() bool {
		g := e.registry.current(loader)
		if trig == triggerTimer {
			return g.stop == fence.stop
		}
		return g.reset == fence.reset
	}
	resultGuard := func() bool {
		return e.registry.current(loader).reset == fence.reset
	}

	req, ok := e.store.DispatchIf(event.NewFetchDataRequest(loader, fetch), requestGuard)
	if !ok {
		e.discard(loader, event.FetchDataRequest, trig)
		return
	}

	start := time.Now()
	data, err := callFetch(e.ctx, fetch)
	e.metrics.observeFetch(loader, err, time.Since(start))

	var outcome event.Event
	if err != nil {
		outcome = event.NewFetchDataFailure(loader, err, e.clock.Now())
	} else {
		outcome = event.NewFetchDataSuccess(loader, data, e.clock.Now())
	}

	dispatched, ok := e.store.DispatchIf(outcome, resultGuard)
	if !ok {
		e.discard(loader, outcome.Type, trig)
		return
	}

	if err != nil {
		e.logger.Warn("fetch failed",
			"loader", loader,
			"trigger", trig.String(),
			"request_seq", req.Seq,
			"seq", dispatched.Seq,
			"error", err,
		)
		return
	}
	e.logger.Debug("fetch succeeded",
		"loader", loader,
		"trigger", trig.String(),
		"request_seq", req.Seq,
		"seq", dispatched.Seq,
	)
}

func (e *Engine) discard(loader string, t event.Type, trig trigger) {
	e.metrics.observeDiscard(loader, t)
	e.logger.Debug("fetch event discarded",
		"loader", loader,
		"type", t.Short(),
		"trigger", trig.String(),
	)
}

// callFetch invokes fetch, converting a panic into a *PanicError.
func callFetch(ctx context.Context, fetch event.FetchFunc) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = &PanicError{Value: r}
		}
	}()

	if fetch == nil {
		return nil, fmt.Errorf("nil fetch function")
	}
	return fetch(ctx)
}
