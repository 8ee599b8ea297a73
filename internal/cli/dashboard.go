package cli

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/state"
)

// DashboardView is the output of the dashboard command.
type DashboardView struct {
	Products        int                   `json:"products"`
	InventoryValue  decimal.Decimal       `json:"inventory_value"`
	TodaySales      decimal.Decimal       `json:"today_sales"`
	LowStock        []model.Product       `json:"low_stock"`
	Monthly         []state.MonthTotal    `json:"monthly"`
	RecentMovements []model.StockMovement `json:"recent_movements"`
	Pending         int                   `json:"pending"`
}

// NewDashboardCommand creates the dashboard command.
func NewDashboardCommand(opts *RootOptions) *cobra.Command {
	var months int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize stock and sales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, true, func(s *session) error {
				st := s.app.State
				view := DashboardView{
					Products:        len(st.Products()),
					InventoryValue:  st.InventoryValue(),
					TodaySales:      st.TodaySales(),
					LowStock:        st.LowStockProducts(),
					Monthly:         st.MonthlySales(months),
					RecentMovements: st.RecentMovements(state.DefaultRecentMovements),
					Pending:         s.app.Queue.Len(),
				}
				return s.out.Emit(view, func(w io.Writer) { renderDashboard(w, view) })
			})
		},
	}
	cmd.Flags().IntVar(&months, "months", 6, "number of months in the sales history")
	return cmd
}

func renderDashboard(w io.Writer, v DashboardView) {
	fmt.Fprintf(w, "Products:        %d\n", v.Products)
	fmt.Fprintf(w, "Inventory value: %s\n", v.InventoryValue.StringFixed(2))
	fmt.Fprintf(w, "Sales today:     %s\n", v.TodaySales.StringFixed(2))
	if v.Pending > 0 {
		fmt.Fprintf(w, "Pending sync:    %d\n", v.Pending)
	}

	if len(v.LowStock) > 0 {
		fmt.Fprintf(w, "\nLow stock (%d):\n", len(v.LowStock))
		for _, p := range v.LowStock {
			fmt.Fprintf(w, "  %-24s %d / %d\n", p.Name, p.Quantity, p.MinStock)
		}
	}

	if len(v.Monthly) > 0 {
		fmt.Fprintln(w, "\nMonthly sales:")
		for _, m := range v.Monthly {
			fmt.Fprintf(w, "  %-6s %d  %s\n", m.Label, m.Year, m.Total.StringFixed(2))
		}
	}

	if len(v.RecentMovements) > 0 {
		fmt.Fprintln(w, "\nRecent movements:")
		renderMovements(w, v.RecentMovements)
	}
}
