package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoload/internal/event"
)

func sampleEvents() []event.Event {
	return []event.Event{
		stamped(1, event.NewInitialize("users", &event.Config{AutoRefreshInterval: time.Second})),
		stamped(2, event.NewStartRefresh("users", event.RefreshOptions{Interval: time.Second, LoadImmediately: true})),
		stamped(3, event.NewFetchDataRequest("users", nil)),
		stamped(4, event.NewFetchDataSuccess("users", map[string]any{"n": 1}, t0)),
		stamped(5, event.NewInitialize("feed", nil)),
		stamped(6, event.NewSetConfig("feed", event.ConfigPatch{AutoRefreshInterval: event.Interval(time.Minute)})),
		stamped(7, event.NewFetchDataFailure("users", errors.New("boom"), t0.Add(time.Second))),
		stamped(8, event.NewReset("feed")),
	}
}

func TestBeginRun(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	run, err := j.BeginRun(ctx, "scenario", t0)
	require.NoError(t, err)
	assert.Len(t, run.ID, 26)
	assert.Equal(t, "scenario", run.Name)

	got, err := j.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.True(t, got.StartedAt.Equal(t0))
	assert.Zero(t, got.EventCount)
}

func TestGetRun_NotFound(t *testing.T) {
	j := createTestJournal(t)

	_, err := j.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = j.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRuns_NewestFirst(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	first, err := j.BeginRun(ctx, "first", t0)
	require.NoError(t, err)
	second, err := j.BeginRun(ctx, "second", t0.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, second.ID, stamped(1, event.NewInitialize("L", nil))))

	runs, err := j.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, 1, runs[0].EventCount)
	assert.Equal(t, first.ID, runs[1].ID)
	assert.Equal(t, 0, runs[1].EventCount)

	latest, err := j.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestAppend_RoundTrip(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	run, err := j.BeginRun(ctx, "rt", t0)
	require.NoError(t, err)
	require.NoError(t, j.AppendAll(ctx, run.ID, sampleEvents()))

	events, err := j.Events(ctx, run.ID, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 8)

	assert.Equal(t, event.Initialize, events[0].Type)
	require.NotNil(t, events[0].Config)
	assert.Equal(t, time.Second, events[0].Config.AutoRefreshInterval)

	assert.Equal(t, time.Second, events[1].Interval)
	assert.True(t, events[1].LoadImmediately)
	assert.Nil(t, events[1].Fetch)

	assert.Equal(t, map[string]any{"n": float64(1)}, events[3].Data)
	assert.True(t, events[3].ReceivedAt.Equal(t0))

	require.NotNil(t, events[5].Patch.AutoRefreshInterval)
	assert.Equal(t, time.Minute, *events[5].Patch.AutoRefreshInterval)

	var re *RecordedError
	require.ErrorAs(t, events[6].Err, &re)
	assert.Equal(t, "boom", re.Message)
	assert.True(t, events[6].ReceivedAt.Equal(t0.Add(time.Second)))

	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestAppend_Idempotent(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	run, err := j.BeginRun(ctx, "dup", t0)
	require.NoError(t, err)

	ev := stamped(1, event.NewInitialize("L", nil))
	require.NoError(t, j.Append(ctx, run.ID, ev))
	require.NoError(t, j.Append(ctx, run.ID, ev))

	events, err := j.Events(ctx, run.ID, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAppend_UnknownRun(t *testing.T) {
	j := createTestJournal(t)
	err := j.Append(context.Background(), "nope", stamped(1, event.NewInitialize("L", nil)))
	assert.Error(t, err)
}

func TestAppend_UnencodableData(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	run, err := j.BeginRun(ctx, "bad", t0)
	require.NoError(t, err)

	err = j.Append(ctx, run.ID, stamped(1, event.NewFetchDataSuccess("L", make(chan int), t0)))
	assert.ErrorContains(t, err, "marshal payload")
}

func TestEvents_Filter(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	run, err := j.BeginRun(ctx, "filter", t0)
	require.NoError(t, err)
	require.NoError(t, j.AppendAll(ctx, run.ID, sampleEvents()))

	feed, err := j.Events(ctx, run.ID, EventFilter{Loader: "feed"})
	require.NoError(t, err)
	assert.Len(t, feed, 3)

	inits, err := j.Events(ctx, run.ID, EventFilter{Type: event.Initialize})
	require.NoError(t, err)
	assert.Len(t, inits, 2)

	both, err := j.Events(ctx, run.ID, EventFilter{Loader: "users", Type: event.FetchDataSuccess})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, int64(4), both[0].Seq)
}

func TestReplay(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	run, err := j.BeginRun(ctx, "replay", t0)
	require.NoError(t, err)
	require.NoError(t, j.AppendAll(ctx, run.ID, sampleEvents()))

	res, err := j.Replay(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, res.Run.ID)
	assert.Equal(t, int64(8), res.LastSeq)

	_, ok := res.State.Get("feed")
	assert.False(t, ok, "feed was reset")

	users, ok := res.State.Get("users")
	require.True(t, ok)
	assert.True(t, users.Initialized)
	assert.True(t, users.Refreshing)
	assert.False(t, users.Loading)
	assert.Equal(t, map[string]any{"n": float64(1)}, users.Data)
	assert.Equal(t, "boom", users.ErrorMessage())
	assert.True(t, users.UpdatedAt.Equal(t0.Add(time.Second)))
}

func TestReplay_UnknownRun(t *testing.T) {
	j := createTestJournal(t)
	_, err := j.Replay(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
