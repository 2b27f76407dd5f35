package harness

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Step: 1, Type: "INITIALIZE", Loader: "users", At: "0s"},
		{Step: 2, Type: "START_REFRESH", Loader: "users", At: "0s"},
		{Step: 3, Type: "FETCH_DATA_REQUEST", Loader: "users", At: "1s"},
		{Step: 3, Type: "FETCH_DATA_SUCCESS", Loader: "users", At: "1s", Data: 1},
		{Step: 4, Type: "FETCH_DATA_REQUEST", Loader: "feed", At: "2s"},
		{Step: 4, Type: "FETCH_DATA_REQUEST", Loader: "users", At: "2s"},
		{Step: 4, Type: "FETCH_DATA_SUCCESS", Loader: "users", At: "2s", Data: 2},
		{Step: 5, Type: "STOP_REFRESH", Loader: "users", At: "2s"},
	}
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "FETCH_DATA_REQUEST", Loader: "users", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "FETCH_DATA_REQUEST", Count: 3}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "@@autoload/RESET", Loader: "users", Count: 0}))

	err := assertTraceCount(trace, Assertion{Event: "FETCH_DATA_REQUEST", Loader: "users", Count: 5})
	require.Error(t, err)

	var aerr *AssertionError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, AssertTraceCount, aerr.Type)
	assert.Equal(t, `5 occurrences of FETCH_DATA_REQUEST for "users"`, aerr.Expected)
	assert.Equal(t, "2 occurrences", aerr.Actual)
	assert.Contains(t, err.Error(), "Full trace:")
	assert.Contains(t, err.Error(), "[8] step 5 +2s STOP_REFRESH users")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	t.Run("in order with gaps", func(t *testing.T) {
		assert.NoError(t, assertTraceOrder(trace, Assertion{
			Loader: "users",
			Events: []string{"INITIALIZE", "FETCH_DATA_SUCCESS", "STOP_REFRESH"},
		}))
	})

	t.Run("repeated types", func(t *testing.T) {
		assert.NoError(t, assertTraceOrder(trace, Assertion{
			Loader: "users",
			Events: []string{"FETCH_DATA_REQUEST", "FETCH_DATA_SUCCESS", "FETCH_DATA_REQUEST", "FETCH_DATA_SUCCESS"},
		}))
	})

	t.Run("wrong order", func(t *testing.T) {
		err := assertTraceOrder(trace, Assertion{
			Loader: "users",
			Events: []string{"STOP_REFRESH", "START_REFRESH"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "then no START_REFRESH")
	})

	t.Run("other loader excluded", func(t *testing.T) {
		err := assertTraceOrder(trace, Assertion{
			Loader: "feed",
			Events: []string{"FETCH_DATA_REQUEST", "FETCH_DATA_SUCCESS"},
		})
		require.Error(t, err)
	})
}

func TestAssertNoEventsAfter(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertNoEventsAfter(trace, Assertion{Event: "STOP_REFRESH", Loader: "users"}))

	err := assertNoEventsAfter(trace, Assertion{Event: "START_REFRESH", Loader: "users"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_DATA_REQUEST at step 3")

	err = assertNoEventsAfter(trace, Assertion{
		Event:  "FETCH_DATA_REQUEST",
		Loader: "users",
		Events: []string{"FETCH_DATA_SUCCESS"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_DATA_SUCCESS at step 4")

	err = assertNoEventsAfter(trace, Assertion{Event: "RESET", Loader: "users"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in trace")
}

func TestAssertFinalState(t *testing.T) {
	state := store.State{
		"users": store.Record{
			Initialized:    true,
			Refreshing:     true,
			Data:           map[string]any{"ids": []any{1, 2}},
			DataReceivedAt: time.Unix(10, 0),
			Err:            errors.New("boom"),
			Config:         event.Config{AutoRefreshInterval: time.Minute},
		},
	}

	assert.NoError(t, assertFinalState(state, Assertion{
		Loader: "users",
		Expect: map[string]any{
			"initialized": true,
			"loading":     false,
			"refreshing":  true,
			"data":        map[string]any{"ids": []any{1.0, int64(2)}},
			"error":       "boom",
			"interval":    "1m0s",
		},
	}))

	err := assertFinalState(state, Assertion{Loader: "users", Expect: map[string]any{"loading": true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users.loading = true")

	err = assertFinalState(state, Assertion{Loader: "feed", Expect: map[string]any{"loading": true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loader not in state")
}

func TestAssertAbsent(t *testing.T) {
	state := store.State{"users": store.Record{Initialized: true}}

	assert.NoError(t, assertAbsent(state, Assertion{Loader: "feed"}))
	assert.Error(t, assertAbsent(state, Assertion{Loader: "users"}))
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(nil, nil))
	assert.True(t, valuesEqual(3, 3.0))
	assert.True(t, valuesEqual(uint8(3), int64(3)))
	assert.True(t, valuesEqual([]any{1, "a"}, []any{1.0, "a"}))
	assert.False(t, valuesEqual(nil, 0))
	assert.False(t, valuesEqual("1", 1))
	assert.False(t, valuesEqual(map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2}))
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.State = store.State{"users": store.Record{Initialized: true}}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Event: "STOP_REFRESH", Loader: "users", Count: 1},
		{Type: AssertAbsent, Loader: "users"},
		{Type: "bogus"},
	})

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "absent")
	assert.Contains(t, errs[1], `assertion[2]: unknown assertion type "bogus"`)
}

func TestBuildTrace_SortsLoadersWithinStep(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []event.Event{
		event.NewInitialize("users", nil),
		event.NewFetchDataRequest("users", nil),
		event.NewFetchDataRequest("feed", nil),
		event.NewFetchDataSuccess("users", 1, t0),
		event.NewFetchDataSuccess("feed", 2, t0),
	}
	bounds := []stepBound{
		{end: 1, at: t0},
		{end: 5, at: t0.Add(time.Second)},
	}

	trace := buildTrace(events, bounds)
	require.Len(t, trace, 5)

	got := make([]string, len(trace))
	for i, te := range trace {
		got[i] = te.Loader + ":" + te.Type
	}
	assert.Equal(t, []string{
		"users:INITIALIZE",
		"feed:FETCH_DATA_REQUEST",
		"feed:FETCH_DATA_SUCCESS",
		"users:FETCH_DATA_REQUEST",
		"users:FETCH_DATA_SUCCESS",
	}, got)
	assert.Equal(t, "0s", trace[0].At)
	assert.Equal(t, "1s", trace[1].At)
	assert.Equal(t, 2, trace[1].Step)
	assert.Equal(t, 2, trace[2].Data)
}
