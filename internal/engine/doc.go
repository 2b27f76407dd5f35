// Package engine coordinates fetches for named loaders.
//
// The engine subscribes to the store's dispatch stream and reacts to four
// commands: START_REFRESH, STOP_REFRESH, LOAD and RESET. It dispatches the
// fetch lifecycle (FETCH_DATA_REQUEST, then FETCH_DATA_SUCCESS or
// FETCH_DATA_FAILURE) back into the same store.
//
// ARCHITECTURE:
//
// Single-Writer Command Loop:
// Observe pushes commands into an inbox in dispatch order; Run drains it and
// processes them one at a time. Only Run inserts or removes auto-refresh tasks, so "at most
// one live task per loader" needs no further locking.
//
// Refresh Tasks:
// A task races a timer against LOADs folded into its mailbox. A LOAD ready on
// the same tick as the timer wins. The interval is re-read from the loader's
// config before every wait.
//
// Generations:
// Observe bumps a per-loader generation on STOP_REFRESH and RESET while still
// inside the store's dispatch lock. Every fetch dispatch re-checks the
// generation it started with under the same lock, so no FETCH_DATA_REQUEST
// can follow a STOP_REFRESH for a timer tick, and nothing at all from an
// earlier fetch can follow a RESET.
//
// Refreshing Flag:
// The store marks a loader refreshing on START_REFRESH and clears it on
// STOP_REFRESH. While Run is running the flag is true exactly when a task is
// live: a START_REFRESH the engine cannot honor is answered with a
// STOP_REFRESH. Once Run returns no task is live and the flag keeps the last
// dispatched intent. A store seeded from such a state clears the flag with
// STOP_REFRESH before a new engine starts the cadence again.
//
// Fetch Slots:
// Fetches for one loader never overlap. A LOAD arriving while a fetch runs
// waits for it; further LOADs replace the waiting one.
package engine
