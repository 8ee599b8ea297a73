package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/model"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local collection cache",
	}
	cmd.AddCommand(newCacheShowCommand(opts))
	return cmd
}

func newCacheShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "show <collection>",
		Short:     "Print a cached collection",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"products", "movements", "sales", "settings"},
		RunE: func(cmd *cobra.Command, args []string) error {
			col := model.Collection(args[0])
			return withSession(opts, cmd, false, func(s *session) error {
				if !col.Valid() {
					return s.out.Fail(ExitFailure, CodeNotFound, fmt.Sprintf("unknown collection %q", col), nil)
				}
				raw, ok, err := s.app.Cache.Raw(s.ctx, col)
				if err != nil {
					return s.out.Fail(ExitCommandError, CodeDatabase, "failed to read cache", err)
				}
				if !ok {
					return s.out.Fail(ExitFailure, CodeNotFound, fmt.Sprintf("collection %q is not cached", col), nil)
				}
				return s.out.Emit(json.RawMessage(raw), func(w io.Writer) {
					var buf bytes.Buffer
					if json.Indent(&buf, raw, "", "  ") != nil {
						w.Write(raw)
						fmt.Fprintln(w)
						return
					}
					buf.WriteByte('\n')
					buf.WriteTo(w)
				})
			})
		},
	}
}
