package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/harness"
	"github.com/roach88/autoload/internal/journal"
	"github.com/roach88/autoload/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal string
}

// RunResult is the output of the run command.
type RunResult struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Trace    []harness.TraceEvent `json:"trace"`
	Errors   []string             `json:"errors,omitempty"`
	State    store.State          `json:"state"`
	RunID    string               `json:"run_id,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and print its trace",
		Long: `Run a scenario against the coordination engine on a manual clock and
print every dispatched event, the final loader state and any failed
assertions.

With --journal, the dispatched events are also recorded as a run in a
SQLite journal for later inspection with "autoload trace".

Exit codes:
  0 - Scenario passed
  1 - One or more assertions failed
  2 - Command error (unreadable scenario, journal error, etc.)

Example:
  autoload run ./scenarios/refresh_cadence.yaml
  autoload run ./scenarios/refresh_cadence.yaml --journal ./autoload.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record the run in this SQLite journal")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return wrapExit(ExitCommandError, "failed to load scenario", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	p.notef("Running scenario %s (%d steps)", scenario.Name, len(scenario.Steps))
	result, err := harness.Run(ctx, scenario, harness.WithLogger(logger))
	if err != nil {
		return wrapExit(ExitCommandError, "scenario execution failed", err)
	}

	out := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Trace:    result.Trace,
		Errors:   result.Errors,
		State:    result.State,
	}

	if opts.Journal != "" {
		run, err := recordRun(ctx, opts.Journal, scenario.Name, result.Events)
		if err != nil {
			return wrapExit(ExitCommandError, "failed to record run", err)
		}
		out.RunID = run.ID
		p.notef("Recorded %d event(s) as run %s", run.EventCount, run.ID)
	}

	if p.json {
		if err := p.result(out.Pass, out); err != nil {
			return err
		}
	} else {
		writeRunText(p.out, out)
	}

	if !out.Pass {
		return exitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// recordRun appends events to a new run in the journal at path.
func recordRun(ctx context.Context, path, name string, events []event.Event) (journal.Run, error) {
	j, err := journal.Open(path)
	if err != nil {
		return journal.Run{}, err
	}
	defer j.Close()

	run, err := j.BeginRun(ctx, name, time.Now().UTC())
	if err != nil {
		return journal.Run{}, err
	}
	if err := j.AppendAll(ctx, run.ID, events); err != nil {
		return journal.Run{}, err
	}
	run.EventCount = len(events)
	return run, nil
}

func writeRunText(w io.Writer, r RunResult) {
	fmt.Fprintf(w, "Scenario: %s\n\n", r.Scenario)

	fmt.Fprintln(w, "Trace:")
	if len(r.Trace) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for i, ev := range r.Trace {
		fmt.Fprintf(w, "  [%d] step %d +%s %s %s%s\n", i+1, ev.Step, ev.At, ev.Type, ev.Loader, traceDetail(ev))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "State:")
	names := r.State.Names()
	sort.Strings(names)
	if len(names) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for _, name := range names {
		rec := r.State[name]
		fmt.Fprintf(w, "  %s: loading=%t refreshing=%t data=%v", name, rec.Loading, rec.Refreshing, rec.Data)
		if msg := rec.ErrorMessage(); msg != "" {
			fmt.Fprintf(w, " error=%q", msg)
		}
		fmt.Fprintln(w)
	}

	if r.RunID != "" {
		fmt.Fprintf(w, "\nRecorded as run %s\n", r.RunID)
	}

	fmt.Fprintln(w)
	if r.Pass {
		fmt.Fprintf(w, "✓ %s\n", r.Scenario)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", r.Scenario)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// traceDetail renders the payload fields of a trace event, if any.
func traceDetail(ev harness.TraceEvent) string {
	switch {
	case ev.Error != "":
		return fmt.Sprintf(" error=%q", ev.Error)
	case ev.Data != nil:
		return fmt.Sprintf(" data=%v", ev.Data)
	case ev.Interval != "":
		return fmt.Sprintf(" interval=%s load_immediately=%t", ev.Interval, ev.LoadImmediately)
	}
	return ""
}
