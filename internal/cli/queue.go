package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/queue"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or clear pending operations",
	}
	cmd.AddCommand(newQueueListCommand(opts), newQueueClearCommand(opts))
	return cmd
}

// OperationView is one row of queue list.
type OperationView struct {
	ID         string    `json:"id"`
	Seq        int64    `json:"seq"`
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func newQueueListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending operations in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, false, func(s *session) error {
				ops := s.app.Queue.List()
				views := make([]OperationView, len(ops))
				for i, op := range ops {
					views[i] = OperationView{
						ID:         op.ID,
						Seq:        op.Seq,
						Kind:       string(op.Kind),
						Subject:    describe(op.Payload),
						Attempts:   op.Attempts,
						EnqueuedAt: op.EnqueuedAt,
					}
				}
				return s.out.Emit(views, func(w io.Writer) {
					if len(views) == 0 {
						fmt.Fprintln(w, "No pending operations.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "SEQ\tKIND\tSUBJECT\tATTEMPTS\tENQUEUED")
					for _, v := range views {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
							v.Seq, v.Kind, v.Subject, v.Attempts, v.EnqueuedAt.Format(time.RFC3339))
					}
					tw.Flush()
				})
			})
		},
	}
}

func newQueueClearCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every pending operation",
		Long: `Drop every pending operation without replaying it.

Local changes that were waiting in the queue will never reach the backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			if !yes {
				return out.Fail(ExitCommandError, CodeConfirmation, "refusing to clear the queue without --yes", nil)
			}
			return withSession(opts, cmd, false, func(s *session) error {
				n := s.app.Queue.Len()
				s.app.Queue.Clear(s.ctx)
				return s.out.Emit(map[string]int{"cleared": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Cleared %d pending operation(s).\n", n)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping pending operations")
	return cmd
}

// describe summarizes a payload for listings.
func describe(p queue.Payload) string {
	switch v := p.(type) {
	case queue.CreateEntity:
		switch {
		case v.Product != nil:
			return fmt.Sprintf("%s %q (%s)", v.Collection, v.Product.Name, v.LocalID)
		case v.Movement != nil:
			return fmt.Sprintf("%s %s %s x%d", v.Collection, v.Movement.ProductID, v.Movement.Type, v.Movement.Quantity)
		}
		return string(v.Collection)
	case queue.UpdateEntity:
		return fmt.Sprintf("%s %s", v.Collection, v.ID)
	case queue.DeleteEntity:
		return fmt.Sprintf("%s %s", v.Collection, v.ID)
	case queue.RecordTransaction:
		return fmt.Sprintf("sale %s: %d line(s), total %s", v.LocalID, len(v.Transaction.Items), v.Transaction.Total)
	case queue.UpdateSettings:
		return fmt.Sprintf("settings %q", v.Settings.StoreName)
	}
	return "?"
}
