package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReal_TimerFires(t *testing.T) {
	c := New()
	timer := c.NewTimer(time.Millisecond)

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(t, timer.Stop())
}

func TestReal_StopPendingTimer(t *testing.T) {
	timer := New().NewTimer(time.Hour)
	assert.True(t, timer.Stop())
}
