// Package journal provides a SQLite-backed trail of dispatched events.
//
// The journal is diagnostic: it records what a run dispatched so the trace
// can be inspected and the final loader state rebuilt by replaying the
// events through store.Reduce. Loader state itself is never persisted.
//
// # Layout
//
//   - runs: one row per recorded run, keyed by a ULID
//   - events: the run's dispatch stream, keyed by (run_id, seq)
//
// All reads order by seq, the store's logical clock, never by wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package journal
