package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/autoload/internal/clock"
	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/store"
)

// Store is what the engine needs from the state store: dispatch for the
// fetch lifecycle, state reads for configured intervals, and a subscription
// to observe commands.
type Store interface {
	store.Dispatcher
	Subscribe(l store.Listener) func()
}

// Engine is the load-coordination engine.
//
// It observes the store's dispatch stream and keeps, for every loader name,
// at most one live auto-refresh task, consistent with the latest
// START_REFRESH / STOP_REFRESH / LOAD / RESET command for that name.
//
// Thread-safety model:
//   - Observe: called by the store on the dispatch path, any goroutine
//   - Run: must be called from exactly one goroutine
//   - Snapshot, Idle, Stop: safe from any goroutine
type Engine struct {
	store           Store
	clock           clock.Clock
	logger          *slog.Logger
	metrics         *Metrics
	ids             TaskIDGenerator
	defaultInterval time.Duration

	inbox    *inbox
	registry *taskRegistry

	// ctx bounds every task and fetch; cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// pending counts commands enqueued but not yet processed.
	pending atomic.Int64
	// inflight counts fetches waiting for or holding a fetch slot.
	inflight atomic.Int64

	unsubscribe func()
	stopOnce    sync.Once
}

// New creates an engine and subscribes it to s.
func New(s Store, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		store:    s,
		clock:    clock.New(),
		logger:   slog.Default(),
		ids:      UUIDv7Generator{},
		inbox:    newInbox(),
		registry: newTaskRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.unsubscribe = s.Subscribe(e.Observe)
	return e
}

// Observe is the store listener. It enqueues commands in dispatch order and
// fences in-flight work of loaders being stopped or reset.
//
// Runs on the dispatch path under the store lock: it never blocks and never
// dispatches.
func (e *Engine) Observe(ev event.Event) {
	e.metrics.observeEvent(ev.Type)

	if !ev.IsCommand() {
		return
	}

	fence := e.registry.observe(ev)

	e.pending.Add(1)
	if !e.inbox.push(command{ev: ev, fence: fence}) {
		e.pending.Add(-1)
	}
}

// Run processes commands until ctx is cancelled or Stop is called.
//
// On return every auto-refresh task has been cancelled and every engine
// goroutine has exited. In-flight fetch calls are waited for.
//
// A command that cannot be processed is logged and skipped.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	defer e.shutdown()

	var batch []command
	for {
		var open bool
		batch, open = e.inbox.drain(batch)
		for _, c := range batch {
			if err := e.process(c); err != nil {
				e.logger.Error("command failed",
					"loader", c.ev.Loader,
					"type", c.ev.Type.Short(),
					"seq", c.ev.Seq,
					"error", err,
				)
			}
			e.pending.Add(-1)
		}
		if len(batch) > 0 {
			continue
		}
		if !open {
			e.logger.Info("engine stopping: inbox closed")
			return nil
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.inbox.close()
			return ctx.Err()
		case <-e.inbox.ready():
		}
	}
}

// Stop closes the inbox. Run processes what was already dispatched and
// returns.
func (e *Engine) Stop() {
	e.inbox.close()
}

func (e *Engine) shutdown() {
	e.stopOnce.Do(func() {
		e.unsubscribe()
		e.inbox.close()
		for _, t := range e.registry.removeAll() {
			t.cancel()
			e.metrics.taskStopped()
		}
		e.cancel()
		e.wg.Wait()
		e.logger.Info("engine stopped")
	})
}

// process routes one command.
// Called only from the Run goroutine.
func (e *Engine) process(q command) error {
	ev := q.ev
	if ev.Loader == "" {
		return reject(ev, ErrNoLoader)
	}

	switch ev.Type {
	case event.StartRefresh:
		return e.startRefresh(q)

	case event.StopRefresh:
		e.stopRefresh(ev.Loader, "stop_refresh")
		return nil

	case event.Reset:
		e.stopRefresh(ev.Loader, "reset")
		e.registry.dropSlot(ev.Loader)
		return nil

	case event.Load:
		return e.load(q)

	default:
		return reject(ev, ErrNotCommand)
	}
}

// startRefresh spawns the auto-refresh task unless one is already live.
//
// A START_REFRESH without a fetch function starts nothing, but the reducer
// has already marked the loader refreshing; a STOP_REFRESH clears the flag.
func (e *Engine) startRefresh(q command) error {
	ev := q.ev
	if existing := e.registry.live(ev.Loader); existing != nil {
		e.logger.Debug("auto refresh already running",
			"loader", ev.Loader,
			"task_id", existing.id,
		)
		return nil
	}

	if ev.Fetch == nil {
		e.store.Dispatch(event.NewStopRefresh(ev.Loader))
		return reject(ev, ErrNoFetch)
	}

	ctx, cancel := context.WithCancel(e.ctx)
	t := &refreshTask{
		id:        e.ids.Generate(),
		loader:    ev.Loader,
		start:     ev,
		fence:     q.fence,
		startedAt: e.clock.Now(),
		cancel:    cancel,
		loads:     make(chan command, 1),
	}

	// Only this goroutine inserts, so the live check above cannot go stale.
	e.registry.insert(t)
	e.metrics.taskStarted()

	e.logger.Info("auto refresh started",
		"loader", ev.Loader,
		"task_id", t.id,
		"interval", ev.Interval,
		"load_immediately", ev.LoadImmediately,
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.autoRefresh(ctx, t)
	}()

	return nil
}

// stopRefresh cancels the loader's live task, if any.
func (e *Engine) stopRefresh(loader, reason string) {
	t := e.registry.remove(loader)
	if t == nil {
		return
	}

	t.cancel()
	e.metrics.taskStopped()

	e.logger.Info("auto refresh stopped",
		"loader", loader,
		"task_id", t.id,
		"reason", reason,
	)
}

// load runs a single fetch, or folds the load into the live cadence.
func (e *Engine) load(q command) error {
	ev := q.ev
	if ev.Fetch == nil {
		return reject(ev, ErrNoFetch)
	}

	if t := e.registry.live(ev.Loader); t != nil {
		select {
		case t.loads <- q:
			e.logger.Debug("load folded into auto refresh", "loader", ev.Loader, "task_id", t.id)
		default:
			e.logger.Debug("load absorbed by pending load", "loader", ev.Loader, "task_id", t.id)
		}
		return nil
	}

	e.loadOnce(q)
	return nil
}

// Snapshot describes the engine's live work.
type Snapshot struct {
	Tasks    []TaskInfo `json:"tasks"`
	Pending  int64      `json:"pending"`
	Inflight int64      `json:"inflight"`
}

// Snapshot returns the live auto-refresh tasks sorted by loader name, plus
// queue and fetch counters.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Tasks:    e.registry.snapshot(),
		Pending:  e.pending.Load(),
		Inflight: e.inflight.Load(),
	}
}

// Refreshing reports whether an auto-refresh task is live for loader.
func (e *Engine) Refreshing(loader string) bool {
	return e.registry.live(loader) != nil
}

// Idle reports whether no command is queued, no fetch is running and every
// live task is waiting in its race.
func (e *Engine) Idle() bool {
	return e.pending.Load() == 0 && e.inflight.Load() == 0 && e.registry.allParked()
}
