package binding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Props are the consumer-supplied inputs a loader is mounted with.
type Props map[string]any

// APICall fetches a loader's data for the given props.
type APICall func(ctx context.Context, props Props) (any, error)

// NameFunc derives a loader name from props.
type NameFunc func(props Props) string

// Predicate compares the props before and after an update.
type Predicate func(prev, next Props) bool

// Never is the default reinitialize and reload predicate.
func Never(Props, Props) bool { return false }

// ConfigError is an invalid Autoloader definition.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Autoloader is a loader definition. It is immutable once built and may be
// mounted any number of times.
type Autoloader struct {
	name     string
	nameFunc NameFunc
	apiCall  APICall

	loadOnInitialize bool
	startOnMount     bool
	reloadOnMount    bool
	resetOnUnmount   bool

	cacheExpiresIn      time.Duration
	autoRefreshInterval time.Duration

	reinitialize Predicate
	reload       Predicate

	collection *Collection
}

// Option configures an Autoloader.
type Option func(*Autoloader)

// WithNameFunc derives the loader name from props at mount and update time.
// It takes precedence over the static name.
func WithNameFunc(f NameFunc) Option {
	return func(a *Autoloader) {
		a.nameFunc = f
	}
}

// WithLoadOnInitialize controls whether the first mount of a name fetches.
// Default: true.
func WithLoadOnInitialize(v bool) Option {
	return func(a *Autoloader) {
		a.loadOnInitialize = v
	}
}

// WithStartOnMount controls whether mounting starts auto refresh when an
// interval is configured. Default: true.
func WithStartOnMount(v bool) Option {
	return func(a *Autoloader) {
		a.startOnMount = v
	}
}

// WithReloadOnMount controls whether mounting an already initialized name
// fetches again regardless of cache age. Default: true.
func WithReloadOnMount(v bool) Option {
	return func(a *Autoloader) {
		a.reloadOnMount = v
	}
}

// WithResetOnUnmount controls whether unmounting removes the loader's
// record. Default: true.
func WithResetOnUnmount(v bool) Option {
	return func(a *Autoloader) {
		a.resetOnUnmount = v
	}
}

// WithCacheExpiresIn sets how long fetched data stays fresh. Zero disables
// staleness checks.
func WithCacheExpiresIn(d time.Duration) Option {
	return func(a *Autoloader) {
		a.cacheExpiresIn = d
	}
}

// WithAutoRefreshInterval sets the refresh cadence. Zero disables auto
// refresh.
func WithAutoRefreshInterval(d time.Duration) Option {
	return func(a *Autoloader) {
		a.autoRefreshInterval = d
	}
}

// WithReinitialize sets the predicate that tears a mounted loader down and
// initializes it again on update.
func WithReinitialize(p Predicate) Option {
	return func(a *Autoloader) {
		a.reinitialize = p
	}
}

// WithReload sets the predicate that triggers a fetch on update.
func WithReload(p Predicate) Option {
	return func(a *Autoloader) {
		a.reload = p
	}
}

// WithCollection registers mounted instances with c.
func WithCollection(c *Collection) Option {
	return func(a *Autoloader) {
		a.collection = c
	}
}

// New builds an Autoloader. name may be empty only when WithNameFunc is
// given.
func New(name string, apiCall APICall, opts ...Option) (*Autoloader, error) {
	a := &Autoloader{
		name:             normalizeName(name),
		apiCall:          apiCall,
		loadOnInitialize: true,
		startOnMount:     true,
		reloadOnMount:    true,
		resetOnUnmount:   true,
		reinitialize:     Never,
		reload:           Never,
	}

	for _, opt := range opts {
		opt(a)
	}

	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// MustNew is New that panics on an invalid definition.
func MustNew(name string, apiCall APICall, opts ...Option) *Autoloader {
	a, err := New(name, apiCall, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *Autoloader) validate() error {
	switch {
	case a.name == "" && a.nameFunc == nil:
		return &ConfigError{Field: "name", Message: "name is required"}
	case a.apiCall == nil:
		return &ConfigError{Field: "apiCall", Message: "apiCall must be a function"}
	case a.cacheExpiresIn < 0:
		return &ConfigError{Field: "cacheExpiresIn", Message: "must not be negative"}
	case a.autoRefreshInterval < 0:
		return &ConfigError{Field: "autoRefreshInterval", Message: "must not be negative"}
	case a.reinitialize == nil:
		return &ConfigError{Field: "reinitialize", Message: "predicate must not be nil"}
	case a.reload == nil:
		return &ConfigError{Field: "reload", Message: "predicate must not be nil"}
	}
	return nil
}

// Name returns the static name, or "" for a props-derived name.
func (a *Autoloader) Name() string {
	if a.nameFunc != nil {
		return ""
	}
	return a.name
}

// AutoRefreshInterval returns the configured cadence.
func (a *Autoloader) AutoRefreshInterval() time.Duration {
	return a.autoRefreshInterval
}

// CacheExpiresIn returns the configured freshness window.
func (a *Autoloader) CacheExpiresIn() time.Duration {
	return a.cacheExpiresIn
}

// ResolveName returns the loader name for props.
func (a *Autoloader) ResolveName(props Props) (string, error) {
	if a.nameFunc == nil {
		return a.name, nil
	}
	name := normalizeName(a.nameFunc(props))
	if name == "" {
		return "", &ConfigError{Field: "name", Message: "name function returned an empty name"}
	}
	return name, nil
}

// normalizeName trims name and brings it to Unicode NFC, so visually equal
// names address the same record.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
