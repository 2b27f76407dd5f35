package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/roach88/autoload/internal/event"
)

// Run is one recorded dispatch stream.
type Run struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	EventCount int       `json:"event_count"`
}

// BeginRun creates a run. Its ULID sorts by startedAt.
func (j *Journal) BeginRun(ctx context.Context, name string, startedAt time.Time) (Run, error) {
	id, err := ulid.New(ulid.Timestamp(startedAt), ulid.DefaultEntropy())
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}

	run := Run{ID: id.String(), Name: name, StartedAt: startedAt}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Name, startedAt.UnixNano(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// Append inserts one event. Uses ON CONFLICT DO NOTHING for idempotency -
// an event with a seq already recorded for the run is silently ignored.
//
// The run must exist (foreign key constraint).
func (j *Journal) Append(ctx context.Context, runID string, ev event.Event) error {
	p, err := marshalPayload(ev)
	if err != nil {
		return fmt.Errorf("append seq %d: %w", ev.Seq, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, type, loader, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		ev.Seq,
		string(ev.Type),
		ev.Loader,
		p,
		toUnixNano(ev.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("append seq %d: %w", ev.Seq, err)
	}
	return nil
}

// AppendAll inserts events in one transaction.
func (j *Journal) AppendAll(ctx context.Context, runID string, events []event.Event) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append all: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, type, loader, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("append all: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		p, err := marshalPayload(ev)
		if err != nil {
			return fmt.Errorf("append seq %d: %w", ev.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, ev.Seq, string(ev.Type), ev.Loader, p, toUnixNano(ev.ReceivedAt)); err != nil {
			return fmt.Errorf("append seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append all: %w", err)
	}
	return nil
}
