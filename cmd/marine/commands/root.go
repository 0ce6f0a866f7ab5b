// Package commands implements the marine subcommands.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammed1916/marine-anomaly/internal/config"
	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

// NewRootCommand builds the marine command tree. Every call returns fresh
// commands with their own flag values.
func NewRootCommand() *cobra.Command {
	command := &cobra.Command{
		Use:          "marine",
		Short:        "AIS trajectory window extraction and record serving",
		Version:      Version,
		SilenceUsage: true,
	}

	command.PersistentFlags().String("config", "config.yaml", "config file path")
	command.PersistentFlags().String("log-level", "", "log level (overrides config)")
	command.PersistentFlags().Bool("log-json", false, "log as JSON (overrides config)")

	command.AddCommand(NewExtractCommand())
	command.AddCommand(NewConvertCommand())
	command.AddCommand(NewServeCommand())
	command.AddCommand(NewBoundsCommand())
	command.AddCommand(NewGapsCommand())
	return command
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration named by --config and initializes logging on
// the command's error stream. A missing config file falls back to defaults.
func setup(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfgPath, _ := flags.GetString("config")
	logLevel, _ := flags.GetString("log-level")
	logJSON, _ := flags.GetBool("log-json")

	cfg, err := config.Load(cfgPath)
	missing := errors.Is(err, os.ErrNotExist)
	if err != nil && !missing {
		return nil, err
	}
	if missing {
		cfg = config.DefaultConfig()
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logJSON {
		cfg.Logging.JSON = true
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, errors.NewValidation("logging.level", err.Error())
	}
	logging.InitWriter(cmd.ErrOrStderr(), level, cfg.Logging.JSON)

	if missing {
		logging.Info("no config file found, using defaults", "path", cfgPath)
	}
	return cfg, nil
}
