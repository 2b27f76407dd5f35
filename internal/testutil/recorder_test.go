package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoload/internal/event"
)

func TestRecorder_CountsAndTypes(t *testing.T) {
	r := NewRecorder()
	r.Record(event.NewInitialize("a", nil))
	r.Record(event.NewLoad("a", nil))
	r.Record(event.NewLoad("b", nil))

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 2, r.Count(event.Load, ""))
	assert.Equal(t, 1, r.Count(event.Load, "b"))
	assert.Equal(t, []event.Type{event.Initialize, event.Load}, r.Types("a"))
}

func TestRecorder_WaitForCount(t *testing.T) {
	r := NewRecorder()
	go func() {
		time.Sleep(5 * time.Millisecond)
		r.Record(event.NewReset("a"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.WaitForCount(ctx, event.Reset, "a", 1))
}
