// Package harness runs conformance scenarios against the load engine.
//
// Each scenario gets a fresh store and engine driven by a manual clock, so
// refresh cadences are fully deterministic. After every step the harness
// waits until the engine is idle: no command queued, no fetch running, and
// every refresh task waiting on its timer.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	loaders:
//	  users:
//	    responses:
//	      - data: {count: 1}
//	      - error: "upstream unavailable"
//	steps:
//	  - action: initialize
//	    loader: users
//	  - action: start_refresh
//	    loader: users
//	    interval: 1s
//	    load_immediately: true
//	  - action: advance
//	    duration: 1s
//	assertions:
//	  - type: trace_count
//	    event: FETCH_DATA_REQUEST
//	    loader: users
//	    count: 2
//	  - type: final_state
//	    loader: users
//	    expect: {refreshing: true, error: "upstream unavailable"}
//
// A loader without a fixture fetches its own call count (1, 2, 3, ...).
//
// Timers are created when a task goes back to waiting, so advancing by
// several intervals in one step fires a cadence only once. Advance one
// interval per step to observe each tick.
//
// # Golden Files
//
// RunWithGolden compares the rendered trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
