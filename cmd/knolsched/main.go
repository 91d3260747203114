package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/config"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/logging"
	"github.com/conorfennell/knolsched/internal/rng"
	"github.com/conorfennell/knolsched/internal/scheduler"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/conorfennell/knolsched/internal/sync"
	"github.com/conorfennell/knolsched/internal/web"
)

const usage = `Usage: knolsched [flags] <command> [args]

Commands:
  add-source <path|url.git>  Register a local directory or a git repository
  sync                       Import notes from every source
  decks                      List decks
  study [deck]               Study in the terminal
  serve                      Serve the JSON study API
  filtered rebuild <id>      Refill a filtered deck from its searches
  filtered empty <id>        Return the cards of a filtered deck home

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := pflag.NewFlagSet("knolsched", pflag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "knolsched.yaml", "Path to the YAML config file")
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}
	logger, closer, err := logging.New(logging.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		Debug: cfg.Log.Debug,
	})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	cmd := fs.Args()
	if len(cmd) == 0 {
		fs.Usage()
		return errors.New("no command given")
	}

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.db.Close()

	switch cmd[0] {
	case "add-source":
		if len(cmd) != 2 {
			return errors.New("usage: knolsched add-source <path|url.git>")
		}
		id, err := sync.AddSource(ctx, a.db, cmd[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Source %d: %s\n", id, cmd[1])
		return nil
	case "sync":
		return a.runSync(ctx, out)
	case "decks":
		return a.listDecks(ctx, out)
	case "study":
		if len(cmd) > 1 {
			deck, err := a.db.DeckByName(ctx, cmd[1])
			if err != nil {
				return err
			}
			if err := a.sched.SelectDeck(ctx, deck.ID); err != nil {
				return err
			}
		}
		return study(ctx, a.sched, a.db, a.clock, in, out)
	case "serve":
		return a.serve(ctx)
	case "filtered":
		return a.filtered(ctx, cmd[1:], out)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd[0])
	}
}

type app struct {
	cfg      config.Config
	db       *storage.DB
	clock    clock.Clock
	sched    *scheduler.Scheduler
	syncOpts sync.Options
	logger   *slog.Logger
}

func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("Database opened", "path", cfg.Database.Path)

	a, err := newApp(ctx, cfg, db, clock.System{}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func newApp(ctx context.Context, cfg config.Config, db *storage.DB, clk clock.Clock, logger *slog.Logger) (*app, error) {
	defaults := cfg.DeckDefaults.Clone()
	defaults.ID = domain.DefaultConfigID
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	if err := db.SaveConfig(ctx, defaults); err != nil {
		return nil, fmt.Errorf("failed to save default deck config: %w", err)
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	created, err := db.CreatedAt(ctx, clk.Now())
	if err != nil {
		return nil, err
	}
	cutoff, err := clock.NewDayCutoff(created, cfg.Scheduler.RolloverHour, loc)
	if err != nil {
		return nil, err
	}

	var r *rand.Rand
	if cfg.Scheduler.Seed != 0 {
		r = rng.New(cfg.Scheduler.Seed)
	} else {
		r = rng.NewSource()
	}

	sched := scheduler.New(db, scheduler.Config{
		Clock:   clk,
		Rand:    r,
		Logger:  logger,
		Cutoff:  cutoff,
		Options: cfg.Scheduler.Options(),
		OnLeech: func(c domain.Card) {
			logger.Warn("Card became a leech", "card", c.ID, "note", c.NoteID, "lapses", c.Lapses)
		},
	})
	return &app{
		cfg:   cfg,
		db:    db,
		clock: clk,
		sched: sched,
		syncOpts: sync.Options{
			ReposDir: cfg.ReposDir,
			Clock:    clk,
			Logger:   logger,
		},
		logger: logger,
	}, nil
}

func (a *app) runSync(ctx context.Context, out io.Writer) error {
	opts := a.syncOpts
	opts.Progress = out
	report, err := sync.Run(ctx, a.db, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Synced %d sources: %d notes added, %d deleted, %d errors.\n",
		report.Sources, report.Added, report.Deleted, len(report.Errors))
	if len(report.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors:")
		for _, e := range report.Errors {
			fmt.Fprintf(out, "- %s\n", e)
		}
	}
	return nil
}

func (a *app) listDecks(ctx context.Context, out io.Writer) error {
	decks, err := a.db.Decks().All(ctx)
	if err != nil {
		return err
	}
	for _, d := range decks {
		kind := ""
		if d.IsFiltered() {
			kind = " (filtered)"
		}
		fmt.Fprintf(out, "%4d  %s%s\n", d.ID, d.Name, kind)
	}
	return nil
}

func (a *app) filtered(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: knolsched filtered rebuild|empty <deck id>")
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: deck id %q", domain.ErrInvalidInput, args[1])
	}
	var n int
	switch args[0] {
	case "rebuild":
		n, err = a.sched.RebuildFiltered(ctx, domain.DeckID(id))
	case "empty":
		n, err = a.sched.EmptyFiltered(ctx, domain.DeckID(id))
	default:
		return fmt.Errorf("unknown filtered command %q", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d cards\n", n)
	return nil
}

func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           web.NewServer(a.db, a.sched, a.syncOpts, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("Starting server", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
