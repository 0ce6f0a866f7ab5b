package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed1916/marine-anomaly/internal/analytics"
	"github.com/mohammed1916/marine-anomaly/internal/logging"
	"github.com/mohammed1916/marine-anomaly/internal/server"
)

// NewServeCommand returns the command that serves the record store over HTTP.
func NewServeCommand() *cobra.Command {
	var (
		listen  string
		dataDir string
	)

	command := &cobra.Command{
		Use:   "serve",
		Short: "Serve range queries over the Parquet record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logging.Component("serve")
			log.Info("marine starting", "version", Version, "listen", cfg.Server.Listen)

			svc, err := analytics.New(cfg.Query)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					log.Warn("close analytics", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, svc).Run(ctx)
		},
	}

	command.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	command.Flags().StringVar(&dataDir, "data-dir", "", "record store root (overrides config)")
	return command
}
