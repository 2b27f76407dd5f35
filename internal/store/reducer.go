package store

import (
	"time"

	"github.com/roach88/autoload/internal/event"
)

// Reduce applies ev to s and returns the resulting state.
//
// Events without a loader name and unknown event types return s unchanged,
// so Reduce composes with unrelated event streams.
func Reduce(s State, ev event.Event) State {
	if ev.Loader == "" {
		return s
	}

	current, exists := s[ev.Loader]

	switch ev.Type {
	case event.Initialize:
		cfg := event.Config{}
		if ev.Config != nil {
			cfg = *ev.Config
		}
		return with(s, ev.Loader, Record{Initialized: true, Config: cfg})

	case event.Reset:
		if !exists {
			return s
		}
		return without(s, ev.Loader)
	}

	if !exists {
		return s
	}

	next, changed := reduceRecord(current, ev)
	if !changed {
		return s
	}
	return with(s, ev.Loader, next)
}

// reduceRecord handles the transitions that require an existing record.
func reduceRecord(r Record, ev event.Event) (Record, bool) {
	switch ev.Type {
	case event.FetchDataRequest:
		r.Loading = true

	case event.FetchDataSuccess:
		r.Loading = false
		r.Data = ev.Data
		r.DataReceivedAt = ev.ReceivedAt
		r.Err = nil
		r.ErrorReceivedAt = time.Time{}
		r.UpdatedAt = ev.ReceivedAt

	case event.FetchDataFailure:
		r.Loading = false
		r.Err = ev.Err
		r.ErrorReceivedAt = ev.ReceivedAt
		r.UpdatedAt = latest(r.DataReceivedAt, ev.ReceivedAt)

	case event.StartRefresh:
		r.Refreshing = true

	case event.StopRefresh:
		r.Refreshing = false

	case event.SetConfig:
		r.Config = ev.Patch.Apply(r.Config)

	default:
		return r, false
	}
	return r, true
}

func with(s State, name string, r Record) State {
	next := make(State, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	next[name] = r
	return next
}

func without(s State, name string) State {
	next := make(State, len(s))
	for k, v := range s {
		if k != name {
			next[k] = v
		}
	}
	return next
}
