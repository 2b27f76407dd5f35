package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/autoload/internal/store"
)

// ReplayResult is the state rebuilt from a run.
type ReplayResult struct {
	Run     Run
	State   store.State
	LastSeq int64
}

// Replay folds the run's events through store.Reduce, starting from an
// empty state.
func (j *Journal) Replay(ctx context.Context, runID string) (*ReplayResult, error) {
	run, err := j.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	events, err := j.Events(ctx, runID, EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	state := store.State{}
	var last int64
	for _, ev := range events {
		state = store.Reduce(state, ev)
		last = ev.Seq
	}

	return &ReplayResult{Run: run, State: state, LastSeq: last}, nil
}

// Resume replays the newest run called name so a store can continue it, or
// begins that run when the journal has none. Seed the store with State and
// number new events after LastSeq; they then append to the same run.
func (j *Journal) Resume(ctx context.Context, name string, now time.Time) (*ReplayResult, error) {
	runs, err := j.Runs(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", name, err)
	}
	for _, r := range runs {
		if r.Name == name {
			return j.Replay(ctx, r.ID)
		}
	}

	run, err := j.BeginRun(ctx, name, now)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", name, err)
	}
	return &ReplayResult{Run: run, State: store.State{}}, nil
}
