package binding

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/roach88/autoload/internal/clock"
	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/selector"
	"github.com/roach88/autoload/internal/store"
)

// ErrUnmounted is returned by actions on an Instance after Unmount.
var ErrUnmounted = errors.New("loader instance is unmounted")

// Binder mounts Autoloaders against a store.
type Binder struct {
	store  store.Dispatcher
	clock  clock.Clock
	logger *slog.Logger
}

// BinderOption configures a Binder.
type BinderOption func(*Binder)

// WithClock sets the clock used for staleness checks. Default: real clock.
func WithClock(c clock.Clock) BinderOption {
	return func(b *Binder) {
		b.clock = c
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) BinderOption {
	return func(b *Binder) {
		b.logger = l
	}
}

// NewBinder creates a Binder dispatching into s.
func NewBinder(s store.Dispatcher, opts ...BinderOption) *Binder {
	b := &Binder{
		store:  s,
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Instance is an Autoloader mounted with concrete props.
//
// Thread-safety: all methods are safe for concurrent use.
type Instance struct {
	binder *Binder
	def    *Autoloader
	memo   *selector.MemoizedData

	mu      sync.Mutex
	name    string
	props   Props
	mounted bool
}

// Mount binds a to props: it initializes the loader if needed, then loads
// or starts auto refresh according to a's policy.
func (b *Binder) Mount(a *Autoloader, props Props) (*Instance, error) {
	name, err := a.ResolveName(props)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		binder:  b,
		def:     a,
		memo:    selector.NewMemoizedData(),
		name:    name,
		props:   maps.Clone(props),
		mounted: true,
	}

	inst.mu.Lock()
	inst.initLocked()
	inst.mu.Unlock()

	if a.collection != nil {
		a.collection.Register(name, inst.Refresh)
	}

	b.logger.Debug("loader mounted", "loader", name)
	return inst, nil
}

// initLocked initializes the record if absent and decides whether to fetch.
//
//	first mount:  fetch iff loadOnInitialize
//	later mounts: fetch iff reloadOnMount, or the cache is stale
//
// With an interval and startOnMount, START_REFRESH is dispatched first and the
// fetch follows as a LOAD, which a live cadence folds in. A second mount of a
// name that is already refreshing therefore still reloads.
func (i *Instance) initLocked() {
	a := i.def
	s := i.binder.store

	wasInitialized := selector.IsInitialized(s.State(), i.name)
	if !wasInitialized {
		s.Dispatch(event.NewInitialize(i.name, &event.Config{
			AutoRefreshInterval: a.autoRefreshInterval,
		}))
	}

	var shouldLoad bool
	if !wasInitialized {
		shouldLoad = a.loadOnInitialize
	} else {
		shouldLoad = a.reloadOnMount || i.staleLocked()
	}

	if a.autoRefreshInterval > 0 && a.startOnMount {
		s.Dispatch(event.NewStartRefresh(i.name, event.RefreshOptions{
			Fetch:    i.fetchLocked(),
			Interval: a.autoRefreshInterval,
		}))
	}
	if shouldLoad {
		s.Dispatch(event.NewLoad(i.name, i.fetchLocked()))
	}
}

// staleLocked reports whether the cached data has expired. Always false
// when no cacheExpiresIn is configured.
func (i *Instance) staleLocked() bool {
	if i.def.cacheExpiresIn <= 0 {
		return false
	}
	st := i.binder.store.State()
	if !selector.IsInitialized(st, i.name) {
		return true
	}
	return selector.IsStale(st, i.name, i.def.cacheExpiresIn, i.binder.clock.Now())
}

// fetchLocked binds the apiCall to a snapshot of the current props.
func (i *Instance) fetchLocked() event.FetchFunc {
	call := i.def.apiCall
	props := maps.Clone(i.props)
	return func(ctx context.Context) (any, error) {
		return call(ctx, props)
	}
}

// Name returns the loader name the instance is currently bound to.
func (i *Instance) Name() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.name
}

// Update applies new props. In order of precedence:
//
//  1. the record is gone, or reinitialize(prev, next): stop, reset and
//     initialize again with next
//  2. reload(prev, next): LOAD with next
//  3. otherwise only the props change
//
// A props-derived name change tears the old name down first.
func (i *Instance) Update(next Props) error {
	nextName, err := i.def.ResolveName(next)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.mounted {
		return ErrUnmounted
	}

	s := i.binder.store
	prev := i.props
	prevName := i.name

	if nextName != prevName {
		s.Dispatch(event.NewStopRefresh(prevName))
		if i.def.resetOnUnmount {
			s.Dispatch(event.NewReset(prevName))
		}
		if c := i.def.collection; c != nil {
			c.Rename(prevName, nextName, i.Refresh)
		}
		i.memo = selector.NewMemoizedData()
	}

	i.name = nextName
	i.props = maps.Clone(next)

	switch {
	case !selector.IsInitialized(s.State(), nextName) || i.def.reinitialize(prev, next):
		s.Dispatch(event.NewStopRefresh(nextName))
		s.Dispatch(event.NewReset(nextName))
		i.memo = selector.NewMemoizedData()
		i.initLocked()
		i.binder.logger.Debug("loader reinitialized", "loader", nextName)

	case i.def.reload(prev, next):
		s.Dispatch(event.NewLoad(nextName, i.fetchLocked()))
	}

	return nil
}

// Recheck fetches if the cached data has expired and no fetch is running.
// It reports whether a LOAD was dispatched.
func (i *Instance) Recheck() (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.mounted {
		return false, ErrUnmounted
	}
	if i.def.cacheExpiresIn <= 0 {
		return false, nil
	}

	st := i.binder.store.State()
	if !selector.IsInitialized(st, i.name) || selector.IsLoading(st, i.name) {
		return false, nil
	}
	if !i.staleLocked() {
		return false, nil
	}

	i.binder.store.Dispatch(event.NewLoad(i.name, i.fetchLocked()))
	return true, nil
}

// Refresh dispatches a manual LOAD.
func (i *Instance) Refresh() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.mounted {
		return ErrUnmounted
	}
	i.binder.store.Dispatch(event.NewLoad(i.name, i.fetchLocked()))
	return nil
}

// StartAutoRefresh starts the cadence with interval d, or with the
// configured interval when d is not positive.
func (i *Instance) StartAutoRefresh(d time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.mounted {
		return ErrUnmounted
	}
	if d <= 0 {
		d = i.def.autoRefreshInterval
	}
	i.binder.store.Dispatch(event.NewStartRefresh(i.name, event.RefreshOptions{
		Fetch:    i.fetchLocked(),
		Interval: d,
	}))
	return nil
}

// StopAutoRefresh stops the cadence.
func (i *Instance) StopAutoRefresh() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.mounted {
		return ErrUnmounted
	}
	i.binder.store.Dispatch(event.NewStopRefresh(i.name))
	return nil
}

// Unmount stops auto refresh and, with resetOnUnmount, removes the record.
// Unmounting twice is a no-op.
func (i *Instance) Unmount() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.mounted {
		return
	}
	i.mounted = false

	s := i.binder.store
	s.Dispatch(event.NewStopRefresh(i.name))
	if i.def.resetOnUnmount {
		s.Dispatch(event.NewReset(i.name))
	}
	if c := i.def.collection; c != nil {
		c.Deregister(i.name)
	}

	i.binder.logger.Debug("loader unmounted", "loader", i.name, "reset", i.def.resetOnUnmount)
}

// View is the loader state exposed to the consumer.
type View struct {
	Name            string    `json:"name"`
	Initialized     bool      `json:"initialized"`
	IsLoading       bool      `json:"is_loading"`
	IsRefreshing    bool      `json:"is_refreshing"`
	Data            any       `json:"data,omitempty"`
	DataReceivedAt  time.Time `json:"data_received_at"`
	Error           error     `json:"-"`
	ErrorReceivedAt time.Time `json:"error_received_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// View reads the current state. An uninitialized loader yields a View with
// only Name set.
func (i *Instance) View() View {
	i.mu.Lock()
	name, memo := i.name, i.memo
	i.mu.Unlock()

	st := i.binder.store.State()
	v := View{Name: name}
	if !selector.IsInitialized(st, name) {
		return v
	}

	v.Initialized = true
	v.IsLoading = selector.IsLoading(st, name)
	v.IsRefreshing = selector.IsRefreshing(st, name)
	v.Data = memo.Get(st, name)
	v.DataReceivedAt = selector.DataReceivedAt(st, name)
	v.Error = selector.Error(st, name)
	v.ErrorReceivedAt = selector.ErrorReceivedAt(st, name)
	v.UpdatedAt = selector.UpdatedAt(st, name)
	return v
}
