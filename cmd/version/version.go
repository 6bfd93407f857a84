// Package version implements the version subcommand.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/qcline/internal/buildinfo"
)

// Command creates the version command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := buildinfo.Current("")
			fmt.Fprintf(cmd.OutOrStdout(), "qcline %s (built %s)\n", info.GetVersion(), info.GetBuildDate())
		},
	}
}
