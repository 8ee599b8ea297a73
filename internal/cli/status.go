package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// StatusView is the output of the status command.
type StatusView struct {
	Owner          string         `json:"owner,omitempty"`
	Remote         bool           `json:"remote"`
	Online         bool           `json:"online"`
	Pending        int            `json:"pending"`
	PendingByKind  map[string]int `json:"pending_by_kind,omitempty"`
	OldestEnqueued *time.Time     `json:"oldest_enqueued,omitempty"`
	EphemeralQueue bool           `json:"ephemeral_queue"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and pending operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, false, runStatus)
		},
	}
}

func runStatus(s *session) error {
	a := s.app
	if a.Prober != nil {
		a.Prober.Probe(s.ctx)
	}

	view := StatusView{
		Owner:          a.Config.Owner,
		Remote:         a.Remote != nil,
		Online:         a.Monitor.IsOnline(),
		EphemeralQueue: a.Queue.Ephemeral(),
	}
	ops := a.Queue.List()
	view.Pending = len(ops)
	if len(ops) > 0 {
		view.PendingByKind = make(map[string]int)
		for _, op := range ops {
			view.PendingByKind[string(op.Kind)]++
		}
		oldest := ops[0].EnqueuedAt
		view.OldestEnqueued = &oldest
	}

	return s.out.Emit(view, func(w io.Writer) {
		switch {
		case !view.Remote:
			fmt.Fprintln(w, "Remote:   not configured (local only)")
		case view.Online:
			fmt.Fprintln(w, "Remote:   online")
		default:
			fmt.Fprintln(w, "Remote:   offline")
		}
		if view.Owner != "" {
			fmt.Fprintf(w, "Owner:    %s\n", view.Owner)
		}
		fmt.Fprintf(w, "Pending:  %d\n", view.Pending)
		for kind, n := range view.PendingByKind {
			fmt.Fprintf(w, "  %-20s %d\n", kind, n)
		}
		if view.OldestEnqueued != nil {
			fmt.Fprintf(w, "Oldest:   %s ago\n", time.Since(*view.OldestEnqueued).Round(time.Second))
		}
		if view.EphemeralQueue {
			fmt.Fprintln(w, "Warning:  local database unavailable, queue is in memory only")
		}
	})
}
