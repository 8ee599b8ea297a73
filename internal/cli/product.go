package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/model"
)

// NewProductCommand creates the product command group.
func NewProductCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "product",
		Aliases: []string{"products"},
		Short:   "Manage the product catalogue",
	}
	cmd.AddCommand(
		newProductListCommand(opts),
		newProductAddCommand(opts),
		newProductUpdateCommand(opts),
		newProductDeleteCommand(opts),
	)
	return cmd
}

func newProductListCommand(opts *RootOptions) *cobra.Command {
	var lowOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, true, func(s *session) error {
				products := s.app.State.Products()
				if lowOnly {
					products = s.app.State.LowStockProducts()
				}
				return s.out.Emit(products, func(w io.Writer) { renderProducts(w, products) })
			})
		},
	}
	cmd.Flags().BoolVar(&lowOnly, "low", false, "only products at or below their minimum stock")
	return cmd
}

func renderProducts(w io.Writer, products []model.Product) {
	if len(products) == 0 {
		fmt.Fprintln(w, "No products.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBARCODE\tCATEGORY\tPRICE\tQTY\tMIN")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d %s\t%d\n",
			p.ID, p.Name, p.Barcode, p.Category, p.Price.StringFixed(2), p.Quantity, p.Unit, p.MinStock)
	}
	tw.Flush()
}

// productFlags holds the editable product fields as raw flag values.
type productFlags struct {
	name     string
	barcode  string
	category string
	price    string
	cost     string
	quantity int64
	minStock int64
	unit     string
}

func (f *productFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "product name")
	cmd.Flags().StringVar(&f.barcode, "barcode", "", "barcode (generated when empty)")
	cmd.Flags().StringVar(&f.category, "category", "", "category")
	cmd.Flags().StringVar(&f.price, "price", "", "selling price")
	cmd.Flags().StringVar(&f.cost, "cost", "", "purchase cost")
	cmd.Flags().Int64Var(&f.quantity, "qty", 0, "quantity in stock")
	cmd.Flags().Int64Var(&f.minStock, "min-stock", 0, "low stock threshold")
	cmd.Flags().StringVar(&f.unit, "unit", "", "unit of measure")
}

func (f *productFlags) fields() (model.ProductFields, error) {
	price, err := parseDecimal("price", f.price)
	if err != nil {
		return model.ProductFields{}, err
	}
	cost, err := parseDecimal("cost", f.cost)
	if err != nil {
		return model.ProductFields{}, err
	}
	unit := f.unit
	if unit == "" {
		unit = model.DefaultUnits[0]
	}
	return model.ProductFields{
		Name:     f.name,
		Barcode:  f.barcode,
		Category: f.category,
		Price:    price,
		Cost:     cost,
		Quantity: f.quantity,
		MinStock: f.minStock,
		Unit:     unit,
	}, nil
}

// patch builds a patch from the flags the user actually set.
func (f *productFlags) patch(cmd *cobra.Command) (model.ProductPatch, error) {
	var p model.ProductPatch
	changed := cmd.Flags().Changed
	if changed("name") {
		p.Name = &f.name
	}
	if changed("barcode") {
		p.Barcode = &f.barcode
	}
	if changed("category") {
		p.Category = &f.category
	}
	if changed("price") {
		d, err := parseDecimal("price", f.price)
		if err != nil {
			return p, err
		}
		p.Price = &d
	}
	if changed("cost") {
		d, err := parseDecimal("cost", f.cost)
		if err != nil {
			return p, err
		}
		p.Cost = &d
	}
	if changed("qty") {
		p.Quantity = &f.quantity
	}
	if changed("min-stock") {
		p.MinStock = &f.minStock
	}
	if changed("unit") {
		p.Unit = &f.unit
	}
	return p, nil
}

func newProductAddCommand(opts *RootOptions) *cobra.Command {
	var f productFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product",
		Example: `  stockpro product add --name "Savon" --price 100 --cost 60 --qty 10 --min-stock 5
  stockpro product add --name "Riz 5kg" --barcode 3017620422003 --price 2500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			fields, err := f.fields()
			if err != nil {
				return out.Fail(ExitFailure, CodeValidation, "invalid product", err)
			}
			return withSession(opts, cmd, true, func(s *session) error {
				p, err := s.app.State.CreateProduct(s.ctx, fields)
				if err != nil {
					return s.actionError("could not add product", err)
				}
				note := s.pendingNote()
				return s.out.Emit(p, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Added %s (%s, barcode %s), %s\n", p.Name, p.ID, p.Barcode, note)
				})
			})
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newProductUpdateCommand(opts *RootOptions) *cobra.Command {
	var f productFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change some fields of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			patch, err := f.patch(cmd)
			if err != nil {
				return out.Fail(ExitFailure, CodeValidation, "invalid product", err)
			}
			return withSession(opts, cmd, true, func(s *session) error {
				p, err := s.app.State.UpdateProduct(s.ctx, args[0], patch)
				if err != nil {
					return s.actionError("could not update product", err)
				}
				note := s.pendingNote()
				return s.out.Emit(p, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Updated %s (%s), %s\n", p.Name, p.ID, note)
				})
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newProductDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, true, func(s *session) error {
				if err := s.app.State.DeleteProduct(s.ctx, args[0]); err != nil {
					return s.actionError("could not delete product", err)
				}
				note := s.pendingNote()
				return s.out.Emit(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Deleted %s, %s\n", args[0], note)
				})
			})
		},
	}
}
