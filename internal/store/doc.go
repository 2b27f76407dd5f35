// Package store holds loader state and applies events to it.
//
// The state is a mapping from loader name to Record. Reduce is the pure
// transition function; Store wraps it with a serialized dispatch path:
//
//	dispatch(ev) -> stamp seq -> Reduce -> notify listeners
//
// All three steps happen under one lock, so every listener observes the
// same total order of events. The coordination engine is one such listener.
//
// # Record lifecycle
//
// A record exists for a name iff that name has been initialized and not yet
// reset. Events addressed to a name without a record (other than INITIALIZE)
// are dropped, so a fetch result arriving after RESET never brings the
// record back.
//
// State values are never mutated in place. Reduce copies the top-level map
// when a record changes, which keeps previously handed-out snapshots stable.
package store
