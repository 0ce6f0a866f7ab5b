package commands

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mohammed1916/marine-anomaly/internal/analytics"
	"github.com/mohammed1916/marine-anomaly/internal/config"
	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/query"
	"github.com/mohammed1916/marine-anomaly/internal/server"
	pq "github.com/mohammed1916/marine-anomaly/internal/storage/parquet"
)

// NewBoundsCommand returns the command that prints the timestamp bounds, or
// with --geo the position bounds, of a Parquet file.
func NewBoundsCommand() *cobra.Command {
	var (
		file    string
		geo     bool
		startTS int64
		endTS   int64
	)

	command := &cobra.Command{
		Use:   "bounds",
		Short: "Print the timestamp or position bounds of a Parquet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.NewMissingField("file")
			}
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}

			var v any
			if geo {
				v, err = geoBounds(cmd.Context(), cfg.Query, file, startTS, endTS)
			} else {
				v, err = timeBounds(cmd.Context(), file)
			}
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
		},
	}

	command.Flags().StringVarP(&file, "file", "f", "", "Parquet file")
	command.Flags().BoolVar(&geo, "geo", false, "print north/south/east/west instead of min/max timestamp")
	command.Flags().Int64Var(&startTS, "start-ts", server.DefaultStartTS, "first timestamp of --geo")
	command.Flags().Int64Var(&endTS, "end-ts", server.DefaultEndTS, "last timestamp of --geo")
	return command
}

func timeBounds(ctx context.Context, path string) (query.Bounds, error) {
	f, err := pq.Open(path)
	if err != nil {
		return query.Bounds{}, err
	}
	defer f.Close()
	return query.New().TimeBounds(ctx, f)
}

func geoBounds(ctx context.Context, cfg config.QueryConfig, path string, t0, t1 int64) (analytics.GeoBounds, error) {
	svc, err := analytics.New(cfg)
	if err != nil {
		return analytics.GeoBounds{}, err
	}
	defer svc.Close()
	return svc.GeoBounds(ctx, path, t0, t1)
}
