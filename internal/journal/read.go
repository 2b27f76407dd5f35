package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/autoload/internal/event"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Runs returns every run, most recent first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.started_at, COUNT(e.seq)
		FROM runs r
		LEFT JOIN events e ON e.run_id = r.id
		GROUP BY r.id
		ORDER BY r.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.Name, &started, &r.EventCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run with id, or ErrRunNotFound.
func (j *Journal) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	var started int64
	err := j.db.QueryRowContext(ctx, `
		SELECT r.id, r.name, r.started_at, (SELECT COUNT(*) FROM events e WHERE e.run_id = r.id)
		FROM runs r
		WHERE r.id = ?
	`, id).Scan(&r.ID, &r.Name, &started, &r.EventCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	r.StartedAt = time.Unix(0, started).UTC()
	return r, nil
}

// LatestRun returns the most recent run, or ErrRunNotFound if there is none.
func (j *Journal) LatestRun(ctx context.Context) (Run, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return j.GetRun(ctx, id)
}

// EventFilter narrows Events. Zero values match everything.
type EventFilter struct {
	Loader string
	Type   event.Type
}

// Events returns the run's events in seq order.
func (j *Journal) Events(ctx context.Context, runID string, filter EventFilter) ([]event.Event, error) {
	query := `
		SELECT seq, type, loader, payload, received_at
		FROM events
		WHERE run_id = ?`
	args := []any{runID}

	if filter.Loader != "" {
		query += ` AND loader = ?`
		args = append(args, filter.Loader)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY seq ASC`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			ev         event.Event
			typ        string
			payload    string
			receivedAt sql.NullInt64
		)
		if err := rows.Scan(&ev.Seq, &typ, &ev.Loader, &payload, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = event.Type(typ)
		if receivedAt.Valid {
			ev.ReceivedAt = time.Unix(0, receivedAt.Int64).UTC()
		}
		if err := unmarshalPayload(payload, &ev); err != nil {
			return nil, fmt.Errorf("event seq %d: %w", ev.Seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
