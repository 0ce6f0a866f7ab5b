package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammed1916/marine-anomaly/internal/chunkstore"
	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/events"
	"github.com/mohammed1916/marine-anomaly/internal/logging"
	"github.com/mohammed1916/marine-anomaly/internal/windows"
)

// NewExtractCommand returns the command that extracts and persists the
// window/label stores of one or more processing units.
func NewExtractCommand() *cobra.Command {
	var (
		inputs     []string
		year       int
		month      int
		windowSize int
		chunkSize  int
		parallel   int
		output     string
	)

	command := &cobra.Command{
		Use:   "extract",
		Short: "Extract trajectory windows into chunked stores",
		Long: `Extract reads sorted AIS events from CSV or Parquet and writes the
windows_{year}_{mon}.zarr and vids_{year}_{mon}.zarr stores of each unit.

An input is either a path, keyed by --year and --month, or UNIT=PATH where
UNIT is e.g. 2018-01 or 2018_jan. Several inputs run as independent units.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := parseUnits(inputs, year, month)
			if err != nil {
				return err
			}

			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("window-size") {
				cfg.Extract.WindowSize = windowSize
			}
			if cmd.Flags().Changed("chunk-size") {
				cfg.Extract.ChunkSize = chunkSize
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Extract.ParallelUnits = parallel
			}
			if output != "" {
				cfg.Output.Path = output
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts, err := windows.OptionsFromConfig(cfg.Extract)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			kv, err := chunkstore.OpenKVStore(ctx, cfg.Output)
			if err != nil {
				return err
			}

			w := windows.NewWriter(kv)
			results, err := w.RunUnits(ctx, units, opts, cfg.Extract.ParallelUnits)
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = "failed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d windows\t%s\n",
					r.Key, status, r.Windows, r.Duration.Round(time.Millisecond))
			}
			return err
		},
	}

	command.Flags().StringArrayVarP(&inputs, "input", "i", nil, "input file, PATH or UNIT=PATH (repeatable)")
	command.Flags().IntVar(&year, "year", 0, "unit year for inputs without UNIT=")
	command.Flags().IntVar(&month, "month", 0, "unit month (1-12) for inputs without UNIT=")
	command.Flags().IntVar(&windowSize, "window-size", 0, "events per window (overrides config)")
	command.Flags().IntVar(&chunkSize, "chunk-size", 0, "windows per batch (overrides config)")
	command.Flags().IntVar(&parallel, "parallel", 0, "units processed concurrently (overrides config)")
	command.Flags().StringVarP(&output, "output", "o", "", "output root (overrides config)")
	return command
}

// parseUnits turns the --input values into processing units.
func parseUnits(inputs []string, year, month int) ([]windows.Unit, error) {
	if len(inputs) == 0 {
		return nil, errors.NewMissingField("input")
	}

	units := make([]windows.Unit, 0, len(inputs))
	for _, in := range inputs {
		var (
			key  windows.Key
			path string
			err  error
		)
		if name, p, ok := strings.Cut(in, "="); ok {
			key, err = windows.ParseKey(name)
			path = p
		} else {
			if year == 0 || month == 0 {
				return nil, errors.NewInvalidArgument("input", in, "needs --year and --month or UNIT=PATH")
			}
			key, err = windows.NewKey(year, time.Month(month))
			path = in
		}
		if err != nil {
			return nil, err
		}
		load, err := loader(path)
		if err != nil {
			return nil, err
		}
		units = append(units, windows.Unit{Key: key, Load: load})
	}
	return units, nil
}

// loader picks the event source by file extension.
func loader(path string) (func(context.Context) (*events.Events, error), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return func(ctx context.Context) (*events.Events, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			logging.FromContext(ctx, logging.Component("extract")).Info("loading csv", "path", path)
			return events.LoadCSV(f)
		}, nil
	case ".parquet":
		return func(ctx context.Context) (*events.Events, error) {
			logging.FromContext(ctx, logging.Component("extract")).Info("loading parquet", "path", path)
			return events.LoadParquet(path)
		}, nil
	default:
		return nil, errors.NewInvalidArgument("input", path, "expected .csv or .parquet")
	}
}
