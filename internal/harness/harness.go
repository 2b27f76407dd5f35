package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/autoload/internal/engine"
	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/store"
	"github.com/roach88/autoload/internal/testutil"
)

const (
	// DefaultSettleTimeout bounds the wait for the engine to go idle after
	// each step.
	DefaultSettleTimeout = 5 * time.Second

	// settleChecks is the number of consecutive idle observations that
	// count as settled.
	settleChecks = 5
)

// Option configures a scenario run.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	settleTimeout time.Duration
}

// WithLogger sets the logger handed to the engine. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSettleTimeout overrides DefaultSettleTimeout.
func WithSettleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.settleTimeout = d
	}
}

// Harness is the test execution engine.
// It runs one scenario against a fresh store and engine on a manual clock.
type Harness struct {
	store         *store.Store
	engine        *engine.Engine
	clock         *testutil.ManualClock
	rec           *testutil.Recorder
	settleTimeout time.Duration

	mu      sync.Mutex
	fixture map[string]LoaderFixture
	fetches map[string]*scriptedFetch
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Create a fresh store, recorder and engine on a manual clock
// 2. Execute each step, then wait for the engine to settle
// 3. Render the trace and evaluate assertions
//
// An error is returned only when the scenario could not be executed;
// failed assertions are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	o := options{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		settleTimeout: DefaultSettleTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	st := store.New()
	rec := testutil.NewRecorder()
	st.Subscribe(rec.Record)
	clk := testutil.NewManualClock(time.Time{})

	eng := engine.New(st,
		engine.WithClock(clk),
		engine.WithLogger(o.logger),
		engine.WithTaskIDGenerator(engine.NewSequentialGenerator("task")),
	)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	h := &Harness{
		store:         st,
		engine:        eng,
		clock:         clk,
		rec:           rec,
		settleTimeout: o.settleTimeout,
		fixture:       scenario.Loaders,
		fetches:       make(map[string]*scriptedFetch),
	}

	bounds := make([]stepBound, 0, len(scenario.Steps))
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		if err := h.settle(ctx); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		bounds = append(bounds, stepBound{end: rec.Len(), at: clk.Now()})
	}

	result := NewResult()
	result.Events = rec.Events()
	result.Trace = buildTrace(result.Events, bounds)
	result.State = st.State()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.Action {
	case StepInitialize:
		var cfg *event.Config
		if step.Interval != "" {
			cfg = &event.Config{AutoRefreshInterval: mustDuration(step.Interval)}
		}
		h.store.Dispatch(event.NewInitialize(step.Loader, cfg))

	case StepStartRefresh:
		opts := event.RefreshOptions{
			Fetch:           h.fetch(step.Loader),
			LoadImmediately: step.LoadImmediately,
		}
		if step.Interval != "" {
			opts.Interval = mustDuration(step.Interval)
		}
		h.store.Dispatch(event.NewStartRefresh(step.Loader, opts))

	case StepStopRefresh:
		h.store.Dispatch(event.NewStopRefresh(step.Loader))

	case StepLoad:
		h.store.Dispatch(event.NewLoad(step.Loader, h.fetch(step.Loader)))

	case StepReset:
		h.store.Dispatch(event.NewReset(step.Loader))

	case StepSetConfig:
		patch := event.ConfigPatch{AutoRefreshInterval: event.Interval(mustDuration(step.Interval))}
		h.store.Dispatch(event.NewSetConfig(step.Loader, patch))

	case StepAdvance:
		h.clock.Advance(mustDuration(step.Duration))

	case StepAwait:
		typ, _ := event.ParseType(step.Event)
		waitCtx, cancel := context.WithTimeout(ctx, h.settleTimeout)
		defer cancel()
		if err := h.rec.WaitForCount(waitCtx, typ, step.Loader, step.Count); err != nil {
			return fmt.Errorf("await %d %s on %q: %w", step.Count, typ.Short(), step.Loader, err)
		}

	case StepSettle:

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

// settle waits until the engine has been idle for several consecutive
// checks.
func (h *Harness) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.settleTimeout)
	defer cancel()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	stable := 0
	for {
		if h.engine.Idle() {
			stable++
			if stable >= settleChecks {
				return nil
			}
		} else {
			stable = 0
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("engine did not settle: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// fetch returns the scripted fetch for loader, creating it on first use.
// Every START_REFRESH and LOAD for a loader shares one call counter.
func (h *Harness) fetch(loader string) event.FetchFunc {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.fetches[loader]
	if !ok {
		f = &scriptedFetch{responses: h.fixture[loader].Responses}
		h.fetches[loader] = f
	}
	return f.fetch
}

type scriptedFetch struct {
	mu        sync.Mutex
	responses []Response
	calls     int
}

func (f *scriptedFetch) fetch(context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if len(f.responses) == 0 {
		return f.calls, nil
	}

	r := f.responses[min(f.calls, len(f.responses))-1]
	if r.Error != "" {
		return nil, errors.New(r.Error)
	}
	return r.Data, nil
}

type stepBound struct {
	end int
	at  time.Time
}

// buildTrace renders events step by step. Events within a step are
// stable-sorted by loader.
func buildTrace(events []event.Event, bounds []stepBound) []TraceEvent {
	trace := make([]TraceEvent, 0, len(events))
	start := 0
	for i, b := range bounds {
		end := min(b.end, len(events))
		if end < start {
			end = start
		}
		group := make([]event.Event, end-start)
		copy(group, events[start:end])
		sort.SliceStable(group, func(a, c int) bool {
			return group[a].Loader < group[c].Loader
		})
		for _, ev := range group {
			trace = append(trace, renderEvent(i+1, b.at, ev))
		}
		start = end
	}
	return trace
}

func renderEvent(step int, at time.Time, ev event.Event) TraceEvent {
	te := TraceEvent{
		Step:   step,
		Type:   ev.Type.Short(),
		Loader: ev.Loader,
		At:     at.Sub(testutil.Epoch).String(),
	}

	switch ev.Type {
	case event.Initialize:
		if ev.Config != nil && ev.Config.AutoRefreshInterval > 0 {
			te.Interval = ev.Config.AutoRefreshInterval.String()
		}
	case event.StartRefresh:
		if ev.Interval > 0 {
			te.Interval = ev.Interval.String()
		}
		te.LoadImmediately = ev.LoadImmediately
	case event.SetConfig:
		if ev.Patch.AutoRefreshInterval != nil {
			te.Interval = ev.Patch.AutoRefreshInterval.String()
		}
	case event.FetchDataSuccess:
		te.Data = ev.Data
	case event.FetchDataFailure:
		if ev.Err != nil {
			te.Error = ev.Err.Error()
		}
	}
	return te
}

// mustDuration parses a duration already checked by validateScenario.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("harness: unvalidated duration %q", s))
	}
	return d
}
