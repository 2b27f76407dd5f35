package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/autoload/internal/event"
)

const recorderBuffer = 256

// Recorder appends a live dispatch stream to a run. Record is a
// store.Listener; the SQLite writes happen on a background goroutine in
// batches, so the dispatch path only waits when the buffer is full.
type Recorder struct {
	j      *Journal
	runID  string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	events chan event.Event
	done   chan struct{}
}

// NewRecorder starts recording into runID. Close it to flush.
func (j *Journal) NewRecorder(runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		j:      j,
		runID:  runID,
		logger: logger,
		events: make(chan event.Event, recorderBuffer),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues ev for the run. Events recorded after Close are dropped.
func (r *Recorder) Record(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.events <- ev
}

// Close stops accepting events and waits until every queued event has been
// written. Idempotent.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)

	batch := make([]event.Event, 0, recorderBuffer)
	for ev := range r.events {
		batch = append(batch[:0], ev)
	drain:
		for len(batch) < cap(batch) {
			select {
			case next, ok := <-r.events:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		if err := r.j.AppendAll(context.Background(), r.runID, batch); err != nil {
			r.logger.Error("journal append failed",
				"run_id", r.runID,
				"events", len(batch),
				"first_seq", batch[0].Seq,
				"error", err,
			)
		}
	}
}
