package commands

import (
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/events"
	"github.com/mohammed1916/marine-anomaly/internal/logging"
	pq "github.com/mohammed1916/marine-anomaly/internal/storage/parquet"
)

// NewConvertCommand returns the command that converts a raw AIS CSV into a
// record store Parquet file sorted by (vessel, timestamp).
func NewConvertCommand() *cobra.Command {
	var (
		input        string
		output       string
		rowGroupSize int
	)

	command := &cobra.Command{
		Use:   "convert",
		Short: "Convert a raw AIS CSV into a sorted Parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return errors.NewMissingField("input")
			}
			if output == "" {
				return errors.NewMissingField("output")
			}

			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("row-group-size") {
				cfg.Records.RowGroupSize = rowGroupSize
			}
			if err := cfg.Records.Validate(); err != nil {
				return err
			}

			opts := pq.DefaultOptions()
			opts.RowGroupSize = cfg.Records.RowGroupSize
			opts.Compression = pq.ParseCompressionType(cfg.Records.Compression)

			rows, skipped, err := convert(input, output, opts)
			if err != nil {
				return err
			}
			logging.Component("convert").Info("converted",
				"input", input, "output", output, "rows", rows, "skipped", skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows (%d skipped)\n", output, rows, skipped)
			return nil
		},
	}

	command.Flags().StringVarP(&input, "input", "i", "", "raw AIS CSV")
	command.Flags().StringVarP(&output, "output", "o", "", "Parquet file to write")
	command.Flags().IntVar(&rowGroupSize, "row-group-size", 0, "rows per row group (overrides config)")
	return command
}

// convert writes the events of a CSV as EventRows. Rows whose timestamp is not
// finite are skipped; vessel ids are the dense first-seen codes.
func convert(input, output string, opts pq.Options) (written, skipped int64, err error) {
	f, err := os.Open(input)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	b, err := events.ReadCSV(f)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", input, err)
	}
	ev := b.Build()

	w, err := pq.NewEventWriter(output, opts)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	batch := make([]pq.EventRow, 0, min(opts.RowGroupSize, ev.Len()))
	for i := 0; i < ev.Len(); i++ {
		ts := ev.Timestamp[i]
		if math.IsNaN(ts) || math.IsInf(ts, 0) {
			skipped++
			continue
		}
		batch = append(batch, pq.EventRow{
			T:        int64(math.Floor(ts)),
			VesselID: int64(ev.VesselID[i]),
			Lat:      ev.Lat[i],
			Lon:      ev.Lon[i],
			Speed:    ev.Speed[i],
			Course:   ev.Course[i],
		})
		if len(batch) == cap(batch) {
			if err := w.Write(batch); err != nil {
				return 0, 0, err
			}
			written += int64(len(batch))
			batch = batch[:0]
		}
	}
	if err := w.Write(batch); err != nil {
		return 0, 0, err
	}
	written += int64(len(batch))
	return written, skipped, nil
}
