package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/app"
)

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the local store in sync until interrupted",
		Long: `Run the background sync machinery.

The command loads the local state, probes the backend on an interval,
drains the pending queue whenever connectivity comes back and once per
sync interval, and serves Prometheus metrics when metrics.addr is set.

Example:
  stockpro run --config stockpro.yaml
  stockpro run --demo --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	cmd.SetContext(ctx)

	return withSession(opts, cmd, true, func(s *session) error {
		w := s.out.GetErrWriter()
		fmt.Fprintf(w, "Sync running (%s). Press Ctrl-C to stop.\n", s.pendingNote())

		err := s.app.Run(s.ctx)
		switch {
		case errors.Is(err, app.ErrNoRemote):
			return s.out.Fail(ExitFailure, CodeSync, "no remote store to sync with", err)
		case err != nil:
			return s.out.Fail(ExitCommandError, CodeSync, "sync stopped", err)
		}
		slog.Info("sync stopped gracefully", "pending", s.app.Queue.Len())
		return nil
	})
}
