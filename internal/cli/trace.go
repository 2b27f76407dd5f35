package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/journal"
	"github.com/roach88/autoload/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Loader   string // optional - filter to one loader
	Type     string // optional - filter to one event type
	Replay   bool
	List     bool
}

// TimelineEntry is one journaled event.
type TimelineEntry struct {
	Seq             int64      `json:"seq"`
	Type            string     `json:"type"`
	Loader          string     `json:"loader"`
	ReceivedAt      *time.Time `json:"received_at,omitempty"`
	Interval        string     `json:"interval,omitempty"`
	LoadImmediately bool       `json:"load_immediately,omitempty"`
	Data            any        `json:"data,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// TraceStats holds summary statistics for a run.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Loaders     int `json:"loaders"`
	Requests    int `json:"requests"`
	Successes   int `json:"successes"`
	Failures    int `json:"failures"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run      journal.Run     `json:"run"`
	Timeline []TimelineEntry `json:"timeline"`
	Stats    TraceStats      `json:"stats"`

	// State is the replayed final state, with --replay.
	State store.State `json:"state,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a journaled run",
		Long: `Show the events of a run recorded in a journal, in dispatch order.

Without --run, the most recent run is shown. With --replay, the run's
events are folded through the reducer and the resulting loader state is
printed as well.

Examples:
  autoload trace --db ./autoload.db
  autoload trace --db ./autoload.db --list
  autoload trace --db ./autoload.db --run 01J... --loader users
  autoload trace --db ./autoload.db --type FETCH_DATA_FAILURE
  autoload trace --db ./autoload.db --replay --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest run)")
	cmd.Flags().StringVar(&opts.Loader, "loader", "", "filter to one loader")
	cmd.Flags().StringVar(&opts.Type, "type", "", "filter to one event type, e.g. LOAD")
	cmd.Flags().BoolVar(&opts.Replay, "replay", false, "replay the run and print the final state")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	p := newPrinter(opts.RootOptions, cmd)

	var filter journal.EventFilter
	filter.Loader = opts.Loader
	if opts.Type != "" {
		t, ok := event.ParseType(opts.Type)
		if !ok {
			return exitError(ExitCommandError, fmt.Sprintf("unknown event type: %s (want one of %s)", opts.Type, knownTypes()))
		}
		filter.Type = t
	}

	// journal.Open creates missing files; a typo should not.
	if _, err := os.Stat(opts.Database); err != nil {
		return wrapExit(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return wrapExit(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	if opts.List {
		return listRuns(ctx, j, p)
	}

	run, err := selectRun(ctx, j, opts.RunID)
	if errors.Is(err, journal.ErrRunNotFound) && opts.RunID == "" {
		if p.json {
			return p.result(true, TraceResult{Timeline: []TimelineEntry{}})
		}
		fmt.Fprintln(p.out, "No runs recorded.")
		return nil
	}
	if err != nil {
		return wrapExit(ExitCommandError, "failed to find run", err)
	}

	events, err := j.Events(ctx, run.ID, filter)
	if err != nil {
		return wrapExit(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		Run:      run,
		Timeline: buildTimeline(events),
		Stats:    buildStats(events),
	}

	if opts.Replay {
		replayed, err := j.Replay(ctx, run.ID)
		if err != nil {
			return wrapExit(ExitCommandError, "failed to replay run", err)
		}
		result.State = replayed.State
	}

	if p.json {
		return p.result(true, result)
	}

	writeTraceText(p.out, result, opts.Replay)
	return nil
}

func selectRun(ctx context.Context, j *journal.Journal, id string) (journal.Run, error) {
	if id == "" {
		return j.LatestRun(ctx)
	}
	return j.GetRun(ctx, id)
}

func listRuns(ctx context.Context, j *journal.Journal, p *printer) error {
	runs, err := j.Runs(ctx)
	if err != nil {
		return wrapExit(ExitCommandError, "failed to list runs", err)
	}
	if runs == nil {
		runs = []journal.Run{}
	}

	if p.json {
		return p.result(true, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(p.out, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(p.out, "%s  %s  %s  %d event(s)\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Name, r.EventCount)
	}
	return nil
}

// buildTimeline renders journaled events for output.
func buildTimeline(events []event.Event) []TimelineEntry {
	timeline := make([]TimelineEntry, 0, len(events))
	for _, ev := range events {
		entry := TimelineEntry{
			Seq:    ev.Seq,
			Type:   ev.Type.Short(),
			Loader: ev.Loader,
			Data:   ev.Data,
		}
		if !ev.ReceivedAt.IsZero() {
			at := ev.ReceivedAt
			entry.ReceivedAt = &at
		}
		if ev.Err != nil {
			entry.Error = ev.Err.Error()
		}
		if ev.Type == event.StartRefresh {
			if ev.Interval > 0 {
				entry.Interval = ev.Interval.String()
			}
			entry.LoadImmediately = ev.LoadImmediately
		}
		timeline = append(timeline, entry)
	}
	return timeline
}

func buildStats(events []event.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	loaders := make(map[string]bool)
	for _, ev := range events {
		loaders[ev.Loader] = true
		switch ev.Type {
		case event.FetchDataRequest:
			stats.Requests++
		case event.FetchDataSuccess:
			stats.Successes++
		case event.FetchDataFailure:
			stats.Failures++
		}
	}
	stats.Loaders = len(loaders)
	return stats
}

func writeTraceText(w io.Writer, r TraceResult, replay bool) {
	fmt.Fprintf(w, "Run: %s (%s)\n", r.Run.ID, r.Run.Name)
	fmt.Fprintf(w, "Started: %s\n\n", r.Run.StartedAt.Format(time.RFC3339))

	fmt.Fprintln(w, "Timeline:")
	if len(r.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range r.Timeline {
		fmt.Fprintf(w, "  [%d] %s %s", e.Seq, e.Type, e.Loader)
		switch {
		case e.Error != "":
			fmt.Fprintf(w, " error=%q", e.Error)
		case e.Data != nil:
			fmt.Fprintf(w, " data=%v", e.Data)
		case e.Interval != "":
			fmt.Fprintf(w, " interval=%s", e.Interval)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d event(s), %d loader(s), %d request(s), %d success(es), %d failure(s)\n",
		r.Stats.TotalEvents, r.Stats.Loaders, r.Stats.Requests, r.Stats.Successes, r.Stats.Failures)

	if !replay {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Replayed state:")
	names := r.State.Names()
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for _, name := range names {
		rec := r.State[name]
		fmt.Fprintf(w, "  %s: initialized=%t refreshing=%t data=%v\n", name, rec.Initialized, rec.Refreshing, rec.Data)
	}
}

// knownTypes lists the short event type names accepted by --type.
func knownTypes() string {
	types := event.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Short()
	}
	return strings.Join(names, ", ")
}
