package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/app"
	"github.com/roach88/stockpro/internal/config"
	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/state"
)

// session is one command's view of the application.
type session struct {
	ctx context.Context
	app *app.App
	out *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// withSession loads the configuration, wires the application, optionally
// loads state, runs fn and closes everything.
func withSession(opts *RootOptions, cmd *cobra.Command, load bool, fn func(s *session) error) error {
	out := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return out.Fail(ExitCommandError, CodeConfig, "failed to load config", err)
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.Demo {
		cfg.Demo = true
	}
	configureLogging(cfg.Log, opts.Verbose, cmd)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, opts.AppOptions...)
	if err != nil {
		return out.Fail(ExitCommandError, CodeDatabase, "failed to open application", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if load {
		src, err := a.Load(ctx)
		if err != nil {
			return out.Fail(ExitCommandError, CodeDatabase, "failed to load state", err)
		}
		out.VerboseLog("state loaded from %s", src)
	}
	return fn(&session{ctx: ctx, app: a, out: out})
}

func configureLogging(l config.Log, verbose bool, cmd *cobra.Command) {
	level := l.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	w := cmd.ErrOrStderr()
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, hopts)
	if l.Format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	}
	slog.SetDefault(slog.New(handler))
}

// actionError maps a state error onto the CLI failure it deserves.
func (s *session) actionError(message string, err error) error {
	switch {
	case errors.Is(err, state.ErrProductNotFound):
		return s.out.Fail(ExitFailure, CodeNotFound, message, err)
	case model.IsValidation(err),
		errors.Is(err, state.ErrEmptyCart),
		errors.Is(err, state.ErrNegativeDiscount),
		errors.Is(err, state.ErrInsufficientPayment),
		errors.Is(err, state.ErrDuplicateBarcode),
		errors.Is(err, state.ErrInvalidQuantity):
		return s.out.Fail(ExitFailure, CodeValidation, message, err)
	}
	return s.out.Fail(ExitCommandError, CodeDatabase, message, err)
}

// pendingNote tells the user whether the last action is waiting in the
// queue.
func (s *session) pendingNote() string {
	if n := s.app.Queue.Len(); n > 0 {
		return "queued for sync (" + strconv.Itoa(n) + " pending)"
	}
	return "synced"
}
