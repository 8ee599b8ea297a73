package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/model"
	"github.com/roach88/stockpro/internal/state"
)

// NewSaleCommand creates the sale command.
func NewSaleCommand(opts *RootOptions) *cobra.Command {
	var (
		items    []string
		payment  string
		discount string
		given    string
	)
	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Record a sale",
		Long: `Record a sale of one or more products.

Each --item names a product by id or barcode, optionally followed by a
quantity. The amount given defaults to the exact amount payable.`,
		Example: `  stockpro sale --item 3017620422003:2 --item p-123 --payment cash
  stockpro sale --item p-123:3 --discount 50 --given 500 --payment d-money`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			lines, err := parseItems(items)
			if err != nil {
				return out.Fail(ExitFailure, CodeValidation, "invalid item", err)
			}
			disc, err := parseDecimal("discount", discount)
			if err != nil {
				return out.Fail(ExitFailure, CodeValidation, "invalid discount", err)
			}
			amount, err := parseDecimal("given", given)
			if err != nil {
				return out.Fail(ExitFailure, CodeValidation, "invalid amount given", err)
			}

			return withSession(opts, cmd, true, func(s *session) error {
				st := s.app.State
				for _, l := range lines {
					p, ok := st.Product(l.ref)
					if !ok {
						p, ok = st.ProductByBarcode(l.ref)
					}
					if !ok {
						return s.actionError("could not add item", fmt.Errorf("%w: %s", state.ErrProductNotFound, l.ref))
					}
					if err := st.AddToCart(p, l.qty); err != nil {
						return s.actionError("could not add item", err)
					}
				}
				if given == "" {
					saleItems := make([]model.SaleItem, 0, len(st.Cart()))
					for _, c := range st.Cart() {
						saleItems = append(saleItems, c.SaleItem())
					}
					amount = model.ComputeTotals(saleItems, st.Settings().TaxRate, disc, amount).Payable
				}

				sale, err := st.RecordSale(s.ctx, payment, disc, amount)
				if err != nil {
					return s.actionError("could not record sale", err)
				}
				note := s.pendingNote()
				return s.out.Emit(sale, func(w io.Writer) { renderSale(w, sale, note) })
			})
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "product id or barcode, with optional :quantity (repeatable)")
	cmd.Flags().StringVar(&payment, "payment", string(model.PaymentCash), "payment method")
	cmd.Flags().StringVar(&discount, "discount", "", "discount amount")
	cmd.Flags().StringVar(&given, "given", "", "amount handed over by the customer")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

type itemRef struct {
	ref string
	qty int64
}

func parseItems(raw []string) ([]itemRef, error) {
	refs := make([]itemRef, 0, len(raw))
	for _, r := range raw {
		ref, q, found := strings.Cut(r, ":")
		item := itemRef{ref: strings.TrimSpace(ref), qty: 1}
		if found {
			n, err := strconv.ParseInt(q, 10, 64)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("--item %q: quantity must be a positive integer", r)
			}
			item.qty = n
		}
		if item.ref == "" {
			return nil, fmt.Errorf("--item %q: missing product", r)
		}
		refs = append(refs, item)
	}
	return refs, nil
}

func renderSale(w io.Writer, s model.Sale, note string) {
	fmt.Fprintf(w, "✓ Sale %s, %s\n", s.ID, note)
	for _, it := range s.Items {
		fmt.Fprintf(w, "  %-24s %3d x %10s\n", it.Name, it.Quantity, it.Price.StringFixed(2))
	}
	fmt.Fprintf(w, "  %-24s %16s\n", "Subtotal", s.GrossTotal.StringFixed(2))
	if !s.TaxTotal.IsZero() {
		fmt.Fprintf(w, "  %-24s %16s\n", "Tax ("+s.TaxRate.String()+"%)", s.TaxTotal.StringFixed(2))
	}
	if !s.Discount.IsZero() {
		fmt.Fprintf(w, "  %-24s %16s\n", "Discount", "-"+s.Discount.StringFixed(2))
	}
	fmt.Fprintf(w, "  %-24s %16s\n", "Total", s.Total.StringFixed(2))
	fmt.Fprintf(w, "  %-24s %16s\n", "Given ("+string(s.PaymentMethod)+")", s.AmountGiven.StringFixed(2))
	fmt.Fprintf(w, "  %-24s %16s\n", "Change", s.Change.StringFixed(2))
}
