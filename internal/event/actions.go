package event

import "time"

// NewInitialize creates an INITIALIZE event. A nil config means defaults.
func NewInitialize(loader string, cfg *Config) Event {
	return Event{Type: Initialize, Loader: loader, Config: cfg}
}

// NewFetchDataRequest creates the event announcing that fetch is about to run.
func NewFetchDataRequest(loader string, fetch FetchFunc) Event {
	return Event{Type: FetchDataRequest, Loader: loader, Fetch: fetch}
}

// NewFetchDataSuccess creates the success outcome of a fetch.
func NewFetchDataSuccess(loader string, data any, receivedAt time.Time) Event {
	return Event{Type: FetchDataSuccess, Loader: loader, Data: data, ReceivedAt: receivedAt}
}

// NewFetchDataFailure creates the failure outcome of a fetch.
func NewFetchDataFailure(loader string, err error, receivedAt time.Time) Event {
	return Event{Type: FetchDataFailure, Loader: loader, Err: err, ReceivedAt: receivedAt}
}

// RefreshOptions are the START_REFRESH parameters.
type RefreshOptions struct {
	Fetch FetchFunc

	// Interval overrides the configured auto refresh interval when > 0.
	Interval time.Duration

	// LoadImmediately runs a fetch before the first wait.
	LoadImmediately bool
}

// NewStartRefresh creates a START_REFRESH command.
func NewStartRefresh(loader string, opts RefreshOptions) Event {
	return Event{
		Type:            StartRefresh,
		Loader:          loader,
		Fetch:           opts.Fetch,
		Interval:        opts.Interval,
		LoadImmediately: opts.LoadImmediately,
	}
}

// NewStopRefresh creates a STOP_REFRESH command.
func NewStopRefresh(loader string) Event {
	return Event{Type: StopRefresh, Loader: loader}
}

// NewLoad creates a LOAD command.
func NewLoad(loader string, fetch FetchFunc) Event {
	return Event{Type: Load, Loader: loader, Fetch: fetch}
}

// NewReset creates a RESET command.
func NewReset(loader string) Event {
	return Event{Type: Reset, Loader: loader}
}

// NewSetConfig creates a SET_CONFIG event.
func NewSetConfig(loader string, patch ConfigPatch) Event {
	return Event{Type: SetConfig, Loader: loader, Patch: patch}
}

// Interval is a convenience for building a ConfigPatch.
func Interval(d time.Duration) *time.Duration {
	return &d
}
