// Package config implements the config subcommand group.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/qcline/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(initCommand(), saveCommand(settings))
	return cmd
}

func initCommand() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				p, err := conf.DefaultConfigFile()
				if err != nil {
					return err
				}
				path = p
			}
			if err := conf.WriteDefaultConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Destination file (default: user config directory)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

// saveCommand writes the effective settings, after defaults and environment
// overrides, back to a file.
func saveCommand(settings *conf.Settings) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.SaveYAMLConfig(path, settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved effective configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Destination file")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}
