package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pvnkmrksk/magga/pkg/buildinfo"
)

// Execute runs the magga CLI and returns an error if any command fails.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the magga CLI under the given context, which
// cancels long-running solves and the HTTP service on SIGINT/SIGTERM.
//
// The root command wires the draw, ilp, serve and cache subcommands,
// configures logging from the --verbose flag and attaches the logger to
// the command context.
func ExecuteContext(ctx context.Context) error {
	var (
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:          "magga",
		Short:        "magga computes octilinear schematic layouts of transit networks",
		Long:         `magga takes a transit line graph and embeds it onto an octilinear grid, producing the stylised schematic geometry of a metro map. Layouts can be computed with a fast routing heuristic or exactly by integer programming.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "TOML configuration file")

	root.AddCommand(newDrawCmd(&configPath))
	root.AddCommand(newILPCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newCacheCmd(&configPath))

	return root.ExecuteContext(ctx)
}
