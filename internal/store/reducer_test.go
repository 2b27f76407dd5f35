package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoload/internal/event"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func reduceAll(events ...event.Event) State {
	s := State{}
	for _, ev := range events {
		s = Reduce(s, ev)
	}
	return s
}

func TestReduce_IgnoresEventsWithoutLoader(t *testing.T) {
	s := State{"a": {Initialized: true}}
	next := Reduce(s, event.Event{Type: event.FetchDataRequest})
	assert.Equal(t, s, next)
}

func TestReduce_UnknownTypeIsIdentity(t *testing.T) {
	s := reduceAll(event.NewInitialize("a", nil))
	next := Reduce(s, event.Event{Type: "some/OTHER", Loader: "a"})
	assert.Equal(t, s, next)
}

func TestReduce_Initialize(t *testing.T) {
	cfg := &event.Config{AutoRefreshInterval: time.Second}
	s := reduceAll(event.NewInitialize("a", cfg))

	rec, ok := s.Get("a")
	require.True(t, ok)
	assert.True(t, rec.Initialized)
	assert.False(t, rec.Loading)
	assert.False(t, rec.Refreshing)
	assert.Nil(t, rec.Data)
	assert.Equal(t, time.Second, rec.Config.AutoRefreshInterval)
}

func TestReduce_InitializeReplacesRecord(t *testing.T) {
	s := reduceAll(
		event.NewInitialize("a", nil),
		event.NewFetchDataSuccess("a", "old", t0),
		event.NewInitialize("a", nil),
	)
	assert.Nil(t, s["a"].Data)
	assert.True(t, s["a"].DataReceivedAt.IsZero())
}

func TestReduce_InitializeThenResetRemovesKey(t *testing.T) {
	s := reduceAll(event.NewInitialize("a", nil), event.NewReset("a"))
	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Empty(t, s)

	// Second reset is a no-op.
	assert.Equal(t, s, Reduce(s, event.NewReset("a")))
}

func TestReduce_FetchLifecycle(t *testing.T) {
	s := reduceAll(event.NewInitialize("a", nil), event.NewFetchDataRequest("a", nil))
	assert.True(t, s["a"].Loading)

	s = Reduce(s, event.NewFetchDataSuccess("a", []int{1, 2}, t0))
	rec := s["a"]
	assert.False(t, rec.Loading)
	assert.Equal(t, []int{1, 2}, rec.Data)
	assert.Equal(t, t0, rec.DataReceivedAt)
	assert.Equal(t, t0, rec.UpdatedAt)
	assert.Nil(t, rec.Err)
}

func TestReduce_FailureKeepsData(t *testing.T) {
	boom := errors.New("boom")
	t1 := t0.Add(time.Minute)

	s := reduceAll(
		event.NewInitialize("a", nil),
		event.NewFetchDataRequest("a", nil),
		event.NewFetchDataSuccess("a", "payload", t0),
		event.NewFetchDataRequest("a", nil),
		event.NewFetchDataFailure("a", boom, t1),
	)

	rec := s["a"]
	assert.False(t, rec.Loading)
	assert.Equal(t, "payload", rec.Data)
	assert.Equal(t, t0, rec.DataReceivedAt)
	assert.Equal(t, boom, rec.Err)
	assert.Equal(t, t1, rec.ErrorReceivedAt)
	assert.Equal(t, t1, rec.UpdatedAt)
	assert.Equal(t, "boom", rec.ErrorMessage())
}

func TestReduce_SuccessClearsError(t *testing.T) {
	t1 := t0.Add(time.Minute)
	s := reduceAll(
		event.NewInitialize("a", nil),
		event.NewFetchDataFailure("a", errors.New("boom"), t0),
		event.NewFetchDataSuccess("a", "ok", t1),
	)

	rec := s["a"]
	assert.Nil(t, rec.Err)
	assert.True(t, rec.ErrorReceivedAt.IsZero())
	assert.Equal(t, t1, rec.UpdatedAt)
	assert.Equal(t, "", rec.ErrorMessage())
}

func TestReduce_UpdatedAtIsLatestTimestamp(t *testing.T) {
	// A failure stamped earlier than the data it follows does not move updatedAt back.
	s := reduceAll(
		event.NewInitialize("a", nil),
		event.NewFetchDataSuccess("a", "ok", t0.Add(time.Hour)),
		event.NewFetchDataFailure("a", errors.New("late"), t0),
	)
	assert.Equal(t, t0.Add(time.Hour), s["a"].UpdatedAt)
}

func TestReduce_RefreshFlags(t *testing.T) {
	s := reduceAll(event.NewInitialize("a", nil), event.NewStartRefresh("a", event.RefreshOptions{}))
	assert.True(t, s["a"].Refreshing)

	s = Reduce(s, event.NewStopRefresh("a"))
	assert.False(t, s["a"].Refreshing)
}

func TestReduce_SetConfigMerges(t *testing.T) {
	s := reduceAll(
		event.NewInitialize("a", &event.Config{AutoRefreshInterval: time.Second}),
		event.NewSetConfig("a", event.ConfigPatch{}),
	)
	assert.Equal(t, time.Second, s["a"].Config.AutoRefreshInterval)

	s = Reduce(s, event.NewSetConfig("a", event.ConfigPatch{AutoRefreshInterval: event.Interval(5 * time.Second)}))
	assert.Equal(t, 5*time.Second, s["a"].Config.AutoRefreshInterval)
}

func TestReduce_DropsEventsForAbsentRecord(t *testing.T) {
	s := reduceAll(
		event.NewInitialize("a", nil),
		event.NewFetchDataRequest("a", nil),
		event.NewReset("a"),
		event.NewFetchDataSuccess("a", "late", t0),
		event.NewStartRefresh("b", event.RefreshOptions{}),
	)
	assert.Empty(t, s)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	before := reduceAll(event.NewInitialize("a", nil))
	after := Reduce(before, event.NewFetchDataRequest("a", nil))

	assert.False(t, before["a"].Loading)
	assert.True(t, after["a"].Loading)
}

func TestReduce_NamesAreIndependent(t *testing.T) {
	s := reduceAll(
		event.NewInitialize("a", nil),
		event.NewInitialize("b", nil),
		event.NewFetchDataRequest("a", nil),
		event.NewReset("b"),
	)
	assert.True(t, s["a"].Loading)
	_, ok := s.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, s.Names())
}
