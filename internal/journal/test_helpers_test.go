package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/autoload/internal/event"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestJournal creates a new journal in a temporary directory.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// stamped sets seq on ev, the way the store would.
func stamped(seq int64, ev event.Event) event.Event {
	ev.Seq = seq
	return ev
}
