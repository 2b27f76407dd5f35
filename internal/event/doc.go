// Package event defines the typed vocabulary shared by the store, the
// coordination engine and the binding layer.
//
// Every event is addressed to a loader by name. Commands (START_REFRESH,
// STOP_REFRESH, LOAD, RESET) are consumed by the engine; the fetch lifecycle
// events (FETCH_DATA_REQUEST, FETCH_DATA_SUCCESS, FETCH_DATA_FAILURE) are
// produced by it. INITIALIZE and SET_CONFIG only touch the store.
//
// Events are values. The store stamps Seq at dispatch time; nothing else
// mutates an event after construction.
package event
