// Package selector provides read-only queries over store.State.
//
// Apart from IsInitialized, every selector requires the record to
// exist. Callers check IsInitialized first; violating that precondition
// panics with an error wrapping ErrNotInitialized.
package selector

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/store"
)

// ErrNotInitialized is the panic value cause when a selector is used on a
// loader that has no record.
var ErrNotInitialized = errors.New("loader not initialized")

// IsInitialized reports whether name has a record.
func IsInitialized(s store.State, name string) bool {
	rec, ok := s[name]
	return ok && rec.Initialized
}

func mustRecord(s store.State, name string) store.Record {
	rec, ok := s[name]
	if !ok {
		panic(fmt.Errorf("selector: %q: %w", name, ErrNotInitialized))
	}
	return rec
}

// IsLoading reports whether a fetch for name is in flight.
func IsLoading(s store.State, name string) bool {
	return mustRecord(s, name).Loading
}

// IsRefreshing reports whether auto refresh is on for name.
func IsRefreshing(s store.State, name string) bool {
	return mustRecord(s, name).Refreshing
}

// Data returns the last successfully fetched payload, or nil.
func Data(s store.State, name string) any {
	return mustRecord(s, name).Data
}

// DataReceivedAt returns when Data arrived. Zero if it never did.
func DataReceivedAt(s store.State, name string) time.Time {
	return mustRecord(s, name).DataReceivedAt
}

// Error returns the last fetch failure. A later success clears it.
func Error(s store.State, name string) error {
	return mustRecord(s, name).Err
}

// ErrorReceivedAt returns when Error arrived. Zero if it never did.
func ErrorReceivedAt(s store.State, name string) time.Time {
	return mustRecord(s, name).ErrorReceivedAt
}

// UpdatedAt returns when the latest fetch outcome for name arrived.
func UpdatedAt(s store.State, name string) time.Time {
	return mustRecord(s, name).UpdatedAt
}

// Config returns the loader configuration held in the store.
func Config(s store.State, name string) event.Config {
	return mustRecord(s, name).Config
}

// IsStale reports whether the cached data of name has expired at now.
//
// Data is stale when now > updatedAt + expiresIn. A record that was never
// updated, or a non-positive expiry, counts as stale.
func IsStale(s store.State, name string, expiresIn time.Duration, now time.Time) bool {
	updatedAt := UpdatedAt(s, name)
	if updatedAt.IsZero() || expiresIn <= 0 {
		return true
	}
	return now.After(updatedAt.Add(expiresIn))
}
