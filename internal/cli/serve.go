package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/autoload/internal/api"
	"github.com/roach88/autoload/internal/binding"
	"github.com/roach88/autoload/internal/config"
	"github.com/roach88/autoload/internal/engine"
	"github.com/roach88/autoload/internal/event"
	"github.com/roach88/autoload/internal/journal"
	"github.com/roach88/autoload/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config          string
	Addr            string
	DefaultInterval time.Duration
	Journal         string
}

// serveRunName names the journal run a journaled serve appends to.
const serveRunName = "serve"

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve declared loaders over HTTP",
		Long: `Start the coordination engine and an HTTP API for the loaders
declared in a CUE or YAML file.

Loaders with a plain name are mounted at startup. Templated loaders
(names like "user:{id}") are mounted on demand with POST /v1/loaders.
Prometheus metrics are served at /metrics.

With --journal, every dispatched event is recorded in a SQLite journal.
On the next start the loader state is rebuilt from that journal, so
cached data survives restarts, and recording continues in the same run.

Example:
  autoload serve --config ./loaders.cue --addr :8080
  autoload serve --config ./loaders.cue --journal ./autoload.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to loader declarations (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&opts.DefaultInterval, "default-interval", 0, "refresh interval for loaders that declare none")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record events in this SQLite journal and resume from it")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	f, err := config.Load(opts.Config)
	if err != nil {
		return wrapExit(ExitCommandError, "failed to load config", err)
	}

	collection := binding.NewCollection()
	loaders, err := config.BuildAll(f, config.WithCollection(collection))
	if err != nil {
		return wrapExit(ExitFailure, "invalid loader declarations", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	st := store.New()
	if opts.Journal != "" {
		var closeJournal func()
		st, closeJournal, err = resumeJournal(ctx, opts.Journal, logger)
		if err != nil {
			return wrapExit(ExitCommandError, "failed to resume journal", err)
		}
		defer closeJournal()
	}

	reg := prometheus.NewRegistry()
	eng := engine.New(st,
		engine.WithLogger(logger),
		engine.WithMetrics(engine.NewMetrics(reg)),
		engine.WithDefaultInterval(opts.DefaultInterval),
	)

	srv := api.NewServer(opts.Addr, api.Deps{
		Store:      st,
		Engine:     eng,
		Binder:     binding.NewBinder(st, binding.WithLogger(logger)),
		Collection: collection,
		Registry:   reg,
	}, logger)

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	for i, a := range loaders {
		name := f.Loaders[i].Name
		srv.Define(name, a)
		if a.Name() == "" {
			logger.Info("loader defined", "definition", name)
			continue
		}
		if _, err := srv.Mount(a, nil); err != nil {
			cancel()
			<-engineDone
			return wrapExit(ExitFailure, fmt.Sprintf("failed to mount loader %s", name), err)
		}
		logger.Info("loader mounted", "loader", name)
	}

	serveErr := srv.Run(ctx)

	srv.UnmountAll()
	cancel()
	engineErr := <-engineDone

	if serveErr != nil {
		return wrapExit(ExitFailure, "server error", serveErr)
	}
	if engineErr != nil && !errors.Is(engineErr, ctx.Err()) {
		return wrapExit(ExitFailure, "engine error", engineErr)
	}
	return nil
}

// resumeJournal opens the journal at path and returns a store seeded from
// its serve run, recording into that run. Loaders left refreshing by the
// previous process get a STOP_REFRESH, since no task runs for them yet;
// mounting restarts the cadence. closeFn flushes the journal.
func resumeJournal(ctx context.Context, path string, logger *slog.Logger) (st *store.Store, closeFn func(), err error) {
	j, err := journal.Open(path)
	if err != nil {
		return nil, nil, err
	}
	res, err := j.Resume(ctx, serveRunName, time.Now().UTC())
	if err != nil {
		j.Close()
		return nil, nil, err
	}

	st = store.New(
		store.WithInitialState(res.State),
		store.WithSeqClock(store.NewSeqClockAt(res.LastSeq)),
	)
	rec := j.NewRecorder(res.Run.ID, logger)
	unsubscribe := st.Subscribe(rec.Record)

	names := res.State.Names()
	sort.Strings(names)
	for _, name := range names {
		if r, _ := res.State.Get(name); r.Refreshing {
			st.Dispatch(event.NewStopRefresh(name))
		}
	}

	logger.Info("journal resumed",
		"path", path,
		"run_id", res.Run.ID,
		"loaders", len(names),
		"last_seq", res.LastSeq,
	)
	return st, func() {
		unsubscribe()
		rec.Close()
		j.Close()
	}, nil
}
