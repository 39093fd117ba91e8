package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/repeat/internal/config"
	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/fsrs"
	"github.com/conorfennell/repeat/internal/storage"
	"github.com/conorfennell/repeat/internal/sync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	db       *storage.DB
	sched    *fsrs.Scheduler
	now      func() time.Time
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	a := &app{now: time.Now}
	def := config.Default()

	root := &cobra.Command{
		Use:          "repeat",
		Short:        "Spaced repetition for flashcards kept in Markdown",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String(config.ConfigFlag, "", "YAML configuration file (env REPEAT_CONFIG)")
	pf.String("db", def.DB, "SQLite database holding review history")
	pf.String("log-level", def.Log.Level, "log level: debug, info, warn or error")
	pf.String("log-format", def.Log.Format, "log format: text or json")
	pf.String("log-file", "", "write logs to this file instead of stderr")
	pf.String("git-cache-dir", def.Git.CacheDir, "directory holding checkouts of git decks")

	root.AddCommand(
		newDrillCmd(a),
		newCheckCmd(a),
		newCreateCmd(a),
		newSourcesCmd(a),
	)
	return root
}

// setup loads configuration and opens the store. Callers must defer close.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	w, closeLog, err := cfg.Log.Output(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.closeLog = closeLog
	a.log = config.NewLogger(cfg.Log, w)

	params, err := cfg.Scheduler.Params()
	if err != nil {
		return err
	}
	a.sched, err = fsrs.NewScheduler(params)
	if err != nil {
		return err
	}

	a.db, err = storage.Open(cmd.Context(), cfg.DB)
	if err != nil {
		a.log.Error("Failed to open database", "path", cfg.DB, "error", err)
		return err
	}
	a.log.Debug("Database opened", "path", cfg.DB)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Failed to close database", "error", err)
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// sessionLogger is the logger used while a terminal UI owns the screen.
// Without a log file, output would corrupt the UI, so it is discarded.
func (a *app) sessionLogger() *slog.Logger {
	if a.cfg.Log.File != "" {
		return a.log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (a *app) today() domain.Date {
	return domain.DateOf(a.now())
}

// workingSet scans roots, reconciles the cards against the store and
// reports any problems on w. With no roots the current directory is used.
func (a *app) workingSet(ctx context.Context, w io.Writer, roots []string) (*sync.WorkingSet, error) {
	if len(roots) == 0 {
		roots = []string{"."}
	}
	scanner := sync.NewScanner(a.db, a.cfg.Git.CacheDir, a.log)
	cards, problems, err := scanner.Scan(ctx, roots)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		fmt.Fprintf(w, "Skipped %d problem(s) while reading decks:\n", len(problems))
		for _, p := range problems {
			fmt.Fprintf(w, "  - %v\n", p)
		}
	}
	return sync.NewReconciler(a.db, a.sched, a.log).Run(ctx, cards)
}
