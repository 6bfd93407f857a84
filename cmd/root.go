// Package cmd wires the qcline command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/qcline/cmd/config"
	"github.com/tphakala/qcline/cmd/notify"
	"github.com/tphakala/qcline/cmd/profiles"
	"github.com/tphakala/qcline/cmd/run"
	"github.com/tphakala/qcline/cmd/simulate"
	"github.com/tphakala/qcline/cmd/validate"
	"github.com/tphakala/qcline/cmd/version"
	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
)

// skipConfigAnnotation marks commands that run without loading settings.
const skipConfigAnnotation = "qcline/skip-config"

// RootCommand creates and returns the root command. Settings are loaded into
// settings before any subcommand that needs them runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:           "qcline",
		Short:         "Cosmetics QC production line simulator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: search ./, ~/.config/qcline, /etc/qcline)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	versionCmd := version.Command()
	skipConfig(versionCmd)
	configCmd := config.Command(settings)
	for _, sub := range configCmd.Commands() {
		if sub.Name() == "init" {
			skipConfig(sub)
		}
	}

	rootCmd.AddCommand(
		run.Command(settings),
		simulate.Command(settings),
		validate.Command(settings),
		profiles.Command(settings),
		notify.Command(settings),
		configCmd,
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		for c := cmd; c != nil; c = c.Parent() {
			if c.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}
		}
		return initialize(settings, configPath, debug)
	}

	return rootCmd
}

func skipConfig(cmd *cobra.Command) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[skipConfigAnnotation] = "true"
}

// initialize loads settings and installs the global logger.
func initialize(settings *conf.Settings, configPath string, debug bool) error {
	loaded, err := conf.Load(configPath)
	if err != nil {
		return err
	}
	*settings = *loaded

	if debug {
		settings.Debug = true
		settings.WebServer.Debug = true
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return errors.New(err).
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_logger").
			Build()
	}
	logger.SetGlobal(central)
	return nil
}
