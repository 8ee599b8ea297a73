package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/app"
	"github.com/roach88/stockpro/internal/engine"
)

// SyncView is the output of the sync command.
type SyncView struct {
	Report  engine.Report `json:"report"`
	Error   string        `json:"error,omitempty"`
	Evicted []EvictedView `json:"evicted,omitempty"`
}

// EvictedView is one dead-lettered operation.
type EvictedView struct {
	Kind    string    `json:"kind"`
	Subject string    `json:"subject"`
	Reason  string    `json:"reason"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var showEvicted bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay pending operations against the backend once",
		Long: `Probe the backend and run one drain pass over the pending queue.

Exits with status 1 when the pass stops before the queue is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, true, func(s *session) error {
				rep, err := s.app.Sync(s.ctx)
				if errors.Is(err, app.ErrNoRemote) {
					return s.out.Fail(ExitFailure, CodeSync, "no remote store to sync with", err)
				}

				view := SyncView{Report: rep}
				if rep.Err != nil {
					view.Error = rep.Err.Error()
				}
				if showEvicted {
					for _, e := range s.app.Engine.Evicted() {
						view.Evicted = append(view.Evicted, EvictedView{
							Kind:    string(e.Operation.Kind),
							Subject: describe(e.Operation.Payload),
							Reason:  string(e.Reason),
							Error:   e.Error,
							At:      e.At,
						})
					}
				}

				if err := s.out.Emit(view, func(w io.Writer) { renderSync(w, view) }); err != nil {
					return err
				}
				if rep.StopReason != engine.StopDrained {
					return NewExitError(ExitFailure, fmt.Sprintf("sync stopped: %s", rep.StopReason))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showEvicted, "evicted", false, "list operations dropped after repeated failures")
	return cmd
}

func renderSync(w io.Writer, v SyncView) {
	r := v.Report
	switch r.StopReason {
	case engine.StopDrained:
		fmt.Fprintf(w, "✓ Synced %d operation(s)", r.Succeeded)
		if r.Refreshed {
			fmt.Fprint(w, ", local data refreshed")
		}
		fmt.Fprintln(w)
	default:
		fmt.Fprintf(w, "✗ Sync stopped (%s): %d succeeded, %d remaining\n", r.StopReason, r.Succeeded, r.Remaining)
		if v.Error != "" {
			fmt.Fprintf(w, "  %s\n", v.Error)
		}
	}
	if r.Evicted > 0 {
		fmt.Fprintf(w, "  %d operation(s) dropped after repeated failures\n", r.Evicted)
	}
	for _, e := range v.Evicted {
		fmt.Fprintf(w, "  - %s %s [%s] %s\n", e.Kind, e.Subject, e.Reason, e.Error)
	}
}
