// Package validate implements the validate subcommand.
package validate

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/simulator"
)

// Command creates the validate command. Settings are already loaded and
// validated by the root command; this additionally builds an engine so lane
// to profile references and sensor geometry are checked end to end.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without starting the line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Validate(cmd.OutOrStdout(), settings)
		},
	}
}

// Validate builds an engine from settings and reports what it contains.
func Validate(w io.Writer, settings *conf.Settings) error {
	engine, err := simulator.BuildEngine(settings)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "configuration OK: %d profiles, %d lanes\n",
		len(engine.Profiles().Names()), len(engine.LaneIDs()))
	for _, id := range engine.LaneIDs() {
		l, _ := engine.Lane(id)
		state := "disabled"
		if l.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(w, "  %s: %s at %.2f u/s, %.1f items/min, %s\n",
			l.ID, l.Profile, l.Speed, l.SpawnRate, state)
	}
	return nil
}
