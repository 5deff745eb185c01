// Package cli wires Cobra subcommands to application dependencies; it is
// a thin controller with no business logic of its own.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/ivycove/cortex/internal/logging"
)

// Version and Commit are set at build time via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// NewRootCmd creates the root command and registers every subcommand.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "cognition-core",
		Short:         "Energy-regulated autonomous cognition core",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.SetDebug(verbose)
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and build info",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte("cognition-core " + Version + " (" + Commit + ")\n"))
			return err
		},
	}
}
