package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/autoload/internal/event"
)

func loadCmd(loader string) command {
	return command{ev: event.NewLoad(loader, nil)}
}

func loaders(batch []command) []string {
	out := make([]string, len(batch))
	for i, c := range batch {
		out[i] = c.ev.Loader
	}
	return out
}

func TestInbox_DrainKeepsDispatchOrder(t *testing.T) {
	b := newInbox()
	for _, name := range []string{"users", "feed", "profile"} {
		require.True(t, b.push(loadCmd(name)))
	}

	batch, open := b.drain(nil)
	assert.True(t, open)
	assert.Equal(t, []string{"users", "feed", "profile"}, loaders(batch))

	batch, open = b.drain(batch)
	assert.True(t, open)
	assert.Empty(t, batch)
}

func TestInbox_DrainReusesBuffer(t *testing.T) {
	b := newInbox()
	b.push(loadCmd("users"))
	first, _ := b.drain(nil)

	// first becomes the inbox's backing store and is cleared.
	b.push(loadCmd("feed"))
	second, _ := b.drain(first)
	require.Len(t, second, 1)
	assert.Equal(t, "feed", second[0].ev.Loader)

	b.push(loadCmd("profile"))
	third, _ := b.drain(second)
	assert.Equal(t, []string{"profile"}, loaders(third))
	assert.Equal(t, &first[:1][0], &third[0], "buffers alternate between drains")
}

func TestInbox_ReadyCoalescesPushes(t *testing.T) {
	b := newInbox()
	b.push(loadCmd("users"))
	b.push(loadCmd("feed"))

	select {
	case <-b.ready():
	case <-time.After(time.Second):
		t.Fatal("ready did not fire after push")
	}

	select {
	case <-b.ready():
		t.Fatal("two pushes produced two wakeups")
	default:
	}
}

func TestInbox_CloseWakesWaiter(t *testing.T) {
	b := newInbox()
	woke := make(chan struct{})
	go func() {
		<-b.ready()
		close(woke)
	}()

	b.close()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("close did not wake the waiter")
	}
	b.close()
}

func TestInbox_PushAfterClose(t *testing.T) {
	b := newInbox()
	b.push(loadCmd("users"))
	b.close()

	assert.False(t, b.push(loadCmd("feed")))

	batch, open := b.drain(nil)
	assert.False(t, open)
	assert.Equal(t, []string{"users"}, loaders(batch), "commands pushed before close survive")
}

func TestInbox_ConcurrentPushes(t *testing.T) {
	b := newInbox()
	const writers, each = 8, 250

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				b.push(loadCmd("x"))
			}
		}()
	}

	total := 0
	var batch []command
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		batch, _ = b.drain(batch)
		total += len(batch)
		select {
		case <-done:
			batch, _ = b.drain(batch)
			total += len(batch)
			assert.Equal(t, writers*each, total)
			return
		default:
		}
	}
}
