package commands

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	defaults "github.com/mohammed1916/marine-anomaly/config"
	"github.com/mohammed1916/marine-anomaly/internal/chunkstore"
	"github.com/mohammed1916/marine-anomaly/internal/windows"
)

// NewGapsCommand returns the command that summarizes the time gaps between
// consecutive events of sampled valid windows of one unit.
func NewGapsCommand() *cobra.Command {
	var (
		year       int
		month      int
		maxWindows int
		seed       int64
		output     string
	)

	command := &cobra.Command{
		Use:   "gaps",
		Short: "Summarize event time gaps of a persisted unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := windows.NewKey(year, time.Month(month))
			if err != nil {
				return err
			}
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if output != "" {
				cfg.Output.Path = output
			}

			ctx := cmd.Context()
			kv, err := chunkstore.OpenKVStore(ctx, cfg.Output)
			if err != nil {
				return err
			}
			r, err := windows.OpenPair(ctx, kv, key)
			if err != nil {
				return err
			}

			gaps, err := windows.SampleGaps(ctx, r, maxWindows, rand.New(rand.NewSource(seed)))
			if err != nil {
				return err
			}
			s, err := windows.SummarizeGaps(gaps)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "unit:   %s (%d windows committed)\n", key, r.NumWindows())
			fmt.Fprintf(out, "gaps:   %d\n", s.Count)
			fmt.Fprintf(out, "mean:   %.2fs\n", s.Mean)
			fmt.Fprintf(out, "median: %.2fs\n", s.Median)
			fmt.Fprintf(out, "p90:    %.2fs\n", s.P90)
			return nil
		},
	}

	command.Flags().IntVar(&year, "year", 0, "unit year")
	command.Flags().IntVar(&month, "month", 0, "unit month (1-12)")
	command.Flags().IntVar(&maxWindows, "max-windows", defaults.DefaultGapSampleWindows, "windows sampled")
	command.Flags().Int64Var(&seed, "seed", 0, "sampling seed")
	command.Flags().StringVarP(&output, "output", "o", "", "output root holding the stores (overrides config)")
	return command
}
