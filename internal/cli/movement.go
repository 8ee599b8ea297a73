package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/state"
)

// NewMovementCommand creates the movement command group.
func NewMovementCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "movement",
		Aliases: []string{"movements"},
		Short:   "Record and list stock movements",
	}
	cmd.AddCommand(newMovementAddCommand(opts), newMovementListCommand(opts))
	return cmd
}

func newMovementAddCommand(opts *RootOptions) *cobra.Command {
	var (
		kind string
		qty  int64
		note string
	)
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Move stock in or out",
		Example: `  stockpro movement add p-123 --type in --qty 20 --note "Livraison"
  stockpro movement add p-123 --type out --qty 2 --note "Casse"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			t := model.MovementType(kind)
			if t != model.MovementIn && t != model.MovementOut {
				return out.Fail(ExitFailure, CodeValidation, fmt.Sprintf("--type must be in or out, got %q", kind), nil)
			}
			return withSession(opts, cmd, true, func(s *session) error {
				m, err := s.app.State.RecordStockMovement(s.ctx, args[0], t, qty, note)
				if err != nil {
					return s.actionError("could not record movement", err)
				}
				p, _ := s.app.State.Product(m.ProductID)
				pending := s.pendingNote()
				return s.out.Emit(m, func(w io.Writer) {
					fmt.Fprintf(w, "✓ %s %s x%d, stock now %d, %s\n", m.Type, m.ProductName, m.Quantity, p.Quantity, pending)
				})
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", string(model.MovementIn), "movement direction: in or out")
	cmd.Flags().Int64Var(&qty, "qty", 0, "number of units")
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func newMovementListCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent movements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, true, func(s *session) error {
				moves := s.app.State.RecentMovements(limit)
				return s.out.Emit(moves, func(w io.Writer) { renderMovements(w, moves) })
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", state.DefaultRecentMovements, "maximum number of movements")
	return cmd
}

func renderMovements(w io.Writer, moves []model.StockMovement) {
	if len(moves) == 0 {
		fmt.Fprintln(w, "No movements.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTYPE\tPRODUCT\tQTY\tNOTE")
	for _, m := range moves {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", m.Date.Local().Format(time.DateTime), m.Type, m.ProductName, m.Quantity, m.Note)
	}
	tw.Flush()
}
