// Package binding issues engine commands from a consumer's lifecycle.
//
// An Autoloader is an immutable loader definition: its name, fetch callback
// and policy knobs. A Binder mounts an Autoloader for a set of props and
// returns an Instance, which decides when to initialize, load, start or stop
// auto refresh, and reset, and exposes the loader's state as a View.
//
// The engine never sees any of these policies; it only reacts to the
// commands an Instance dispatches.
package binding
