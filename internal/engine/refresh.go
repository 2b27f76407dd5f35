package engine

import (
	"context"
	"time"

	"github.com/roach88/autoload/internal/clock"
)

// autoRefresh is the body of a refresh task.
//
// It optionally fetches once, then loops: wait for the interval or a folded
// LOAD, whichever comes first, and fetch. A LOAD that arrives on the same
// tick as the timer wins, and the interval restarts after every fetch.
//
// On cancellation the task returns without waiting for anything; a LOAD
// still in its mailbox is handed to loadOnce.
func (e *Engine) autoRefresh(ctx context.Context, t *refreshTask) {
	defer e.drainLoads(t)

	start := t.start
	if start.LoadImmediately {
		e.fetchInTask(ctx, t.loader, start.Fetch, t.fence, triggerTimer)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		interval := e.interval(t)
		var timer clock.Timer
		var fired <-chan time.Time
		if interval > 0 {
			timer = e.clock.NewTimer(interval)
			fired = timer.C()
		}

		t.park(fired)

		select {
		case <-ctx.Done():
			t.unpark()
			stopTimer(timer)
			return

		case q := <-t.loads:
			t.unpark()
			stopTimer(timer)
			e.foldedLoad(ctx, t, q)

		case <-fired:
			t.unpark()
			select {
			case q := <-t.loads:
				e.foldedLoad(ctx, t, q)
				continue
			default:
			}
			if ctx.Err() != nil {
				return
			}
			e.fetchInTask(ctx, t.loader, start.Fetch, t.fence, triggerTimer)
		}
	}
}

// foldedLoad runs a LOAD received by the task. If the task is cancelled
// before the fetch slot frees up, the LOAD moves to the single-load path.
func (e *Engine) foldedLoad(ctx context.Context, t *refreshTask, q command) {
	if e.fetchInTask(ctx, t.loader, q.ev.Fetch, q.fence, triggerLoad) {
		return
	}
	if e.ctx.Err() == nil {
		e.loadOnce(q)
	}
}

// interval resolves the task's wait: the START_REFRESH interval, else the
// loader's configured interval, else the engine default.
func (e *Engine) interval(t *refreshTask) time.Duration {
	if t.start.Interval > 0 {
		return t.start.Interval
	}
	if rec, ok := e.store.State().Get(t.loader); ok && rec.Config.AutoRefreshInterval > 0 {
		return rec.Config.AutoRefreshInterval
	}
	return e.defaultInterval
}

// drainLoads hands a LOAD still waiting in the task's mailbox to the
// single-load path, so stopping the cadence never swallows a manual load.
func (e *Engine) drainLoads(t *refreshTask) {
	select {
	case q := <-t.loads:
		if e.ctx.Err() != nil {
			return
		}
		e.loadOnce(q)
	default:
	}
}

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}
