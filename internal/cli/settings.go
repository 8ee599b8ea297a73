package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the store settings",
	}
	cmd.AddCommand(newSettingsShowCommand(opts), newSettingsSetCommand(opts))
	return cmd
}

func newSettingsShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the store settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(opts, cmd, true, func(s *session) error {
				st := s.app.State.Settings()
				return s.out.Emit(st, func(w io.Writer) {
					fmt.Fprintf(w, "Store:      %s\n", st.StoreName)
					fmt.Fprintf(w, "Tax rate:   %s%%\n", st.TaxRate)
					if st.Address != "" {
						fmt.Fprintf(w, "Address:    %s\n", st.Address)
					}
					if st.Phone != "" {
						fmt.Fprintf(w, "Phone:      %s\n", st.Phone)
					}
					fmt.Fprintf(w, "Categories: %s\n", strings.Join(st.Categories, ", "))
					fmt.Fprintf(w, "Units:      %s\n", strings.Join(st.Units, ", "))
				})
			})
		},
	}
}

func newSettingsSetCommand(opts *RootOptions) *cobra.Command {
	var (
		name       string
		taxRate    string
		address    string
		phone      string
		categories []string
		units      []string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change some store settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)
			rate, err := parseDecimal("tax-rate", taxRate)
			if err != nil {
				return out.Fail(ExitFailure, CodeValidation, "invalid settings", err)
			}
			return withSession(opts, cmd, true, func(s *session) error {
				st := s.app.State.Settings()
				changed := cmd.Flags().Changed
				if changed("store-name") {
					st.StoreName = name
				}
				if changed("tax-rate") {
					st.TaxRate = rate
				}
				if changed("address") {
					st.Address = address
				}
				if changed("phone") {
					st.Phone = phone
				}
				if changed("category") {
					st.Categories = categories
				}
				if changed("unit") {
					st.Units = units
				}
				if err := s.app.State.UpdateSettings(s.ctx, st); err != nil {
					return s.actionError("could not save settings", err)
				}
				note := s.pendingNote()
				return s.out.Emit(st, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Settings saved, %s\n", note)
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "store-name", "", "store name printed on receipts")
	cmd.Flags().StringVar(&taxRate, "tax-rate", "", "tax rate in percent")
	cmd.Flags().StringVar(&address, "address", "", "store address")
	cmd.Flags().StringVar(&phone, "phone", "", "store phone number")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "product categories (replaces the list)")
	cmd.Flags().StringSliceVar(&units, "unit", nil, "units of measure (replaces the list)")
	return cmd
}
