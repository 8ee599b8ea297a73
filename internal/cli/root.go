package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpro/internal/app"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DBPath     string
	Demo       bool

	// AppOptions are passed to app.New (for testing).
	AppOptions []app.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the StockPro CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockpro",
		Short: "StockPro offline sync core",
		Long: `StockPro keeps the point of sale working without a connection.

Every change is applied locally at once, cached in a SQLite database and
queued when the backend cannot confirm it. Queued operations are replayed
in order once the backend is reachable again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	flags.StringVar(&opts.DBPath, "db", "", "path to SQLite database (overrides config)")
	flags.BoolVar(&opts.Demo, "demo", false, "use an in-memory demo backend")

	cmd.AddCommand(
		NewStatusCommand(opts),
		NewQueueCommand(opts),
		NewSyncCommand(opts),
		NewRunCommand(opts),
		NewCacheCommand(opts),
		NewProductCommand(opts),
		NewMovementCommand(opts),
		NewSaleCommand(opts),
		NewSettingsCommand(opts),
		NewDashboardCommand(opts),
	)
	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
