// Package profiles implements the profiles subcommand.
package profiles

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/simulator"
)

// Command creates the profiles command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the configured product profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return List(cmd.OutOrStdout(), settings)
		},
	}
}

// List prints the profile registry as a table.
func List(w io.Writer, settings *conf.Settings) error {
	registry, err := simulator.ProfilesFromSettings(settings)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDIAMETER\tHEIGHT\tTOLERANCE\tSOFTNESS")
	for _, p := range registry.All() {
		fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t±%.1f\t%.0f-%.0f\n",
			p.Name, p.Diameter, p.TargetHeight, p.HeightTolerance, p.SoftnessMin, p.SoftnessMax)
	}
	return tw.Flush()
}
