package selector

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/store"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestIsInitialized_NeverInitialized(t *testing.T) {
	s := store.State{}
	assert.False(t, IsInitialized(s, "missing"))
}

func TestSelectors_ReadRecordFields(t *testing.T) {
	boom := errors.New("boom")
	s := store.State{
		"a": {
			Initialized:     true,
			Loading:         true,
			Refreshing:      true,
			Data:            "payload",
			DataReceivedAt:  t0,
			Err:             boom,
			ErrorReceivedAt: t0.Add(time.Second),
			UpdatedAt:       t0.Add(time.Second),
			Config:          event.Config{AutoRefreshInterval: time.Minute},
		},
	}

	assert.True(t, IsInitialized(s, "a"))
	assert.True(t, IsLoading(s, "a"))
	assert.True(t, IsRefreshing(s, "a"))
	assert.Equal(t, "payload", Data(s, "a"))
	assert.Equal(t, t0, DataReceivedAt(s, "a"))
	assert.Equal(t, boom, Error(s, "a"))
	assert.Equal(t, t0.Add(time.Second), ErrorReceivedAt(s, "a"))
	assert.Equal(t, t0.Add(time.Second), UpdatedAt(s, "a"))
	assert.Equal(t, time.Minute, Config(s, "a").AutoRefreshInterval)
}

func TestSelectors_PanicWhenNotInitialized(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrNotInitialized)
	}()
	IsLoading(store.State{}, "missing")
}

func TestIsStale(t *testing.T) {
	s := store.State{
		"fresh": {Initialized: true, UpdatedAt: t0},
		"empty": {Initialized: true},
	}

	assert.True(t, IsStale(s, "empty", time.Second, t0), "never updated")
	assert.True(t, IsStale(s, "fresh", 0, t0), "no expiry configured")
	assert.False(t, IsStale(s, "fresh", time.Second, t0.Add(500*time.Millisecond)))
	assert.False(t, IsStale(s, "fresh", time.Second, t0.Add(time.Second)), "boundary is not stale")
	assert.True(t, IsStale(s, "fresh", time.Second, t0.Add(1100*time.Millisecond)))
}

func TestMemoizedData_ReturnsCachedValueWhileTimestampUnchanged(t *testing.T) {
	first := []string{"x"}
	second := []string{"x"}

	m := NewMemoizedData()
	s1 := store.State{"a": {Initialized: true, Data: first, DataReceivedAt: t0}}
	s2 := store.State{"a": {Initialized: true, Data: second, DataReceivedAt: t0, Loading: true}}

	got1 := m.Get(s1, "a").([]string)
	got2 := m.Get(s2, "a").([]string)

	assert.Same(t, &first[0], &got1[0])
	assert.Same(t, &first[0], &got2[0], "unchanged timestamp must keep the cached reference")
}

func TestMemoizedData_RefreshesOnNewTimestamp(t *testing.T) {
	first := []string{"x"}
	second := []string{"y"}

	m := NewMemoizedData()
	m.Get(store.State{"a": {Initialized: true, Data: first, DataReceivedAt: t0}}, "a")
	got := m.Get(store.State{"a": {Initialized: true, Data: second, DataReceivedAt: t0.Add(time.Second)}}, "a").([]string)

	assert.Same(t, &second[0], &got[0])
}

func TestMemoizedData_InstancesAreIndependent(t *testing.T) {
	s := store.State{"a": {Initialized: true, Data: "one", DataReceivedAt: t0}}
	m1 := NewMemoizedData()
	m2 := NewMemoizedData()

	assert.Equal(t, "one", m1.Get(s, "a"))

	s2 := store.State{"a": {Initialized: true, Data: "two", DataReceivedAt: t0}}
	assert.Equal(t, "one", m1.Get(s2, "a"))
	assert.Equal(t, "two", m2.Get(s2, "a"))
}
