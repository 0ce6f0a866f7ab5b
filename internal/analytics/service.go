// Package analytics answers aggregate questions over record store files with
// DuckDB: distinct vessels of a time window, density heatmaps and ad-hoc SQL.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/mohammed1916/marine-anomaly/internal/config"
	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/logging"
	pq "github.com/mohammed1916/marine-anomaly/internal/storage/parquet"
)

// Service provides analytics over record store files.
type Service struct {
	db  *sql.DB
	log *slog.Logger

	queries atomic.Int64
	rows    atomic.Int64
	failed  atomic.Int64
}

// Stats holds service statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// HeatCell is one non-empty grid cell of a heatmap.
type HeatCell struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Weight float64 `json:"weight"`
}

// GeoBounds is the bounding box of the positions of a time window.
type GeoBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// New opens an in-memory DuckDB database.
func New(cfg config.QueryConfig) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if cfg.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit=%s", quote(cfg.MemoryLimit))); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		db:  db,
		log: logging.Component("analytics"),
	}, nil
}

// Close closes the database.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Stats returns service statistics.
func (s *Service) Stats() Stats {
	return Stats{
		QueriesExecuted: s.queries.Load(),
		RowsReturned:    s.rows.Load(),
		Errors:          s.failed.Load(),
	}
}

// quote returns s as a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ident returns s as a quoted SQL identifier.
func ident(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// source resolves the timestamp column of path and returns the FROM and
// WHERE fragments selecting rows with a timestamp in [t0, t1].
func source(path string, t0, t1 int64) (string, error) {
	f, err := pq.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ts, _, err := f.TimestampColumn()
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return fmt.Sprintf("read_parquet(%s) WHERE %s BETWEEN %d AND %d",
		quote(path), ident(ts), t0, t1), nil
}

func (s *Service) fail(err error) error {
	s.failed.Add(1)
	return err
}

// UniqueVessels returns the number of distinct vessels with a row in [t0, t1].
func (s *Service) UniqueVessels(ctx context.Context, path string, t0, t1 int64) (int64, error) {
	from, err := source(path, t0, t1)
	if err != nil {
		return 0, s.fail(err)
	}

	var n int64
	q := "SELECT count(DISTINCT vessel_id) FROM " + from
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, s.fail(fmt.Errorf("unique vessels: %w", err))
	}
	s.queries.Add(1)
	s.rows.Add(1)
	return n, nil
}

// VesselIDs returns the ascending distinct vessel ids with a row in [t0, t1].
func (s *Service) VesselIDs(ctx context.Context, path string, t0, t1 int64) ([]int64, error) {
	from, err := source(path, t0, t1)
	if err != nil {
		return nil, s.fail(err)
	}

	q := "SELECT DISTINCT CAST(vessel_id AS BIGINT) AS v FROM " + from + " AND vessel_id IS NOT NULL ORDER BY v"
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, s.fail(fmt.Errorf("vessel ids: %w", err))
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, s.fail(fmt.Errorf("scan row: %w", err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(err)
	}
	s.queries.Add(1)
	s.rows.Add(int64(len(ids)))
	return ids, nil
}

// Heatmap bins the positions of [t0, t1] into cells of cellSize degrees,
// anchored at the minimum latitude and longitude of the window. Each
// non-empty cell is reported at its centre with its count divided by the
// largest count.
func (s *Service) Heatmap(ctx context.Context, path string, t0, t1 int64, cellSize float64) ([]HeatCell, error) {
	if !(cellSize > 0) {
		return nil, errors.NewInvalidArgument("cell_size", cellSize, "must be positive")
	}
	from, err := source(path, t0, t1)
	if err != nil {
		return nil, s.fail(err)
	}

	q := fmt.Sprintf(`
		WITH pts AS (
			SELECT CAST(lat AS DOUBLE) AS lat, CAST(lon AS DOUBLE) AS lon
			FROM %s
			  AND lat IS NOT NULL AND lon IS NOT NULL
			  AND isfinite(lat) AND isfinite(lon)
		),
		origin AS (
			SELECT min(lat) AS lat0, min(lon) AS lon0 FROM pts
		)
		SELECT
			CAST(floor((lat - lat0) / %[2]g) AS BIGINT) AS i,
			CAST(floor((lon - lon0) / %[2]g) AS BIGINT) AS j,
			any_value(lat0), any_value(lon0),
			count(*) AS n
		FROM pts, origin
		GROUP BY i, j
		ORDER BY i, j
	`, from, cellSize)

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, s.fail(fmt.Errorf("heatmap: %w", err))
	}
	defer rows.Close()

	type bin struct {
		i, j       int64
		lat0, lon0 float64
		n          int64
	}
	var bins []bin
	var maxCount int64
	for rows.Next() {
		var b bin
		if err := rows.Scan(&b.i, &b.j, &b.lat0, &b.lon0, &b.n); err != nil {
			return nil, s.fail(fmt.Errorf("scan row: %w", err))
		}
		bins = append(bins, b)
		maxCount = max(maxCount, b.n)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(err)
	}

	cells := make([]HeatCell, 0, len(bins))
	for _, b := range bins {
		cells = append(cells, HeatCell{
			Lat:    b.lat0 + (float64(b.i)+0.5)*cellSize,
			Lon:    b.lon0 + (float64(b.j)+0.5)*cellSize,
			Weight: float64(b.n) / float64(maxCount),
		})
	}
	s.queries.Add(1)
	s.rows.Add(int64(len(cells)))
	s.log.Debug("heatmap", "file", path, "cells", len(cells), "cell_size", cellSize)
	return cells, nil
}

// GeoBounds returns the latitude and longitude extremes of the positions in
// [t0, t1]. Null and non-finite coordinates are ignored; a window without any
// position yields ErrNotFound.
func (s *Service) GeoBounds(ctx context.Context, path string, t0, t1 int64) (GeoBounds, error) {
	from, err := source(path, t0, t1)
	if err != nil {
		return GeoBounds{}, s.fail(err)
	}

	q := fmt.Sprintf(`
		SELECT max(lat), min(lat), max(lon), min(lon)
		FROM (
			SELECT CAST(lat AS DOUBLE) AS lat, CAST(lon AS DOUBLE) AS lon
			FROM %s
			  AND lat IS NOT NULL AND lon IS NOT NULL
			  AND isfinite(lat) AND isfinite(lon)
		)
	`, from)

	var north, south, east, west sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, q).Scan(&north, &south, &east, &west); err != nil {
		return GeoBounds{}, s.fail(fmt.Errorf("geo bounds: %w", err))
	}
	s.queries.Add(1)
	if !north.Valid {
		return GeoBounds{}, errors.NewNotFound("position", path)
	}
	s.rows.Add(1)
	return GeoBounds{North: north.Float64, South: south.Float64, East: east.Float64, West: west.Float64}, nil
}

// ExecuteSQL executes a raw SQL query using DuckDB.
// This is useful for ad-hoc queries and debugging.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.fail(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, s.fail(err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, s.fail(err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(err)
	}

	s.queries.Add(1)
	s.rows.Add(int64(len(results)))
	return results, nil
}
