// Package query implements the read-only range queries of the serving layer
// over record store files: rows by time window, a row by global index,
// streaming by index range and the time bounds of a file.
//
// Every record leaving the engine has been sanitized. Queries are stateless;
// an Engine may be shared by any number of goroutines.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/logging"
	"github.com/mohammed1916/marine-anomaly/internal/metrics"
	"github.com/mohammed1916/marine-anomaly/internal/record"
	pq "github.com/mohammed1916/marine-anomaly/internal/storage/parquet"
)

// Operation names used in metrics and logs.
const (
	OpTimeWindow = "time_window"
	OpRowAt      = "row_at"
	OpRowsRange  = "rows_range"
	OpTimeBounds = "time_bounds"
)

// streamBatch is the number of rows decoded per RowsRange step.
const streamBatch = 1024

// Bounds is the inclusive timestamp range of a file.
type Bounds struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Engine runs range queries.
type Engine struct {
	log *slog.Logger
}

// New creates an engine.
func New() *Engine {
	return &Engine{log: logging.Component("query")}
}

func (e *Engine) done(ctx context.Context, op string, f *pq.File, rows int, began time.Time, err error) {
	if err != nil {
		metrics.QueryErrors.WithLabelValues(op).Inc()
		logging.FromContext(ctx, e.log).Debug("query failed", "op", op, "file", f.Path(), "error", err)
		return
	}
	metrics.QueryRows.WithLabelValues(op).Add(float64(rows))
	logging.FromContext(ctx, e.log).Debug("query done",
		"op", op,
		"file", f.Path(),
		"rows", rows,
		"duration", time.Since(began))
}

// predicate matches a timestamp value against an inclusive range. Integer
// columns compare as int64, floating point columns as float64.
type predicate struct {
	t0, t1 int64
}

func (p predicate) match(v parquet.Value) bool {
	if v.IsNull() {
		return false
	}
	switch v.Kind() {
	case parquet.Int32:
		t := int64(v.Int32())
		return t >= p.t0 && t <= p.t1
	case parquet.Int64:
		t := v.Int64()
		return t >= p.t0 && t <= p.t1
	case parquet.Float, parquet.Double:
		t, _ := pq.Numeric(v)
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return false
		}
		return t >= float64(p.t0) && t <= float64(p.t1)
	default:
		return false
	}
}

// TimeWindow returns every row whose timestamp lies in [t0, t1], in row group
// encounter order. Only the timestamp column of a row group is read to
// evaluate the predicate; the group is decoded only when a row matches.
// t0 > t1 yields no rows.
func (e *Engine) TimeWindow(ctx context.Context, f *pq.File, t0, t1 int64) (_ []record.Record, err error) {
	began := time.Now()
	var out []record.Record
	defer func() { e.done(ctx, OpTimeWindow, f, len(out), began, err) }()

	_, col, err := f.TimestampColumn()
	if err != nil {
		return nil, err
	}
	out = make([]record.Record, 0)
	if t0 > t1 {
		return out, nil
	}

	pred := predicate{t0: t0, t1: t1}
	for rg := 0; rg < f.NumRowGroups(); rg++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sel, err := selectRows(f, rg, col, pred)
		if err != nil {
			return nil, err
		}
		metrics.RowGroupsScanned.Inc()
		if len(sel) == 0 {
			continue
		}

		first, last := sel[0], sel[len(sel)-1]
		rows, err := f.ReadRows(rg, first, last-first+1)
		if err != nil {
			return nil, err
		}
		metrics.RowGroupsDecoded.Inc()
		for _, i := range sel {
			out = append(out, record.Sanitize(rows[i-first]))
		}
	}
	return out, nil
}

// selectRows returns the ascending local indices of the rows of rg that match.
func selectRows(f *pq.File, rg, col int, pred predicate) ([]int64, error) {
	var sel []int64
	var i int64
	err := f.ScanColumn(rg, col, func(values []parquet.Value) error {
		for _, v := range values {
			if pred.match(v) {
				sel = append(sel, i)
			}
			i++
		}
		return nil
	})
	return sel, err
}

// RowAt returns the row with global index index. Only the owning row group
// is read.
func (e *Engine) RowAt(ctx context.Context, f *pq.File, index int64) (_ record.Record, err error) {
	began := time.Now()
	defer func() { e.done(ctx, OpRowAt, f, 1, began, err) }()

	rg, local, err := f.Locate(index)
	if err != nil {
		return record.Record{}, err
	}
	rows, err := f.ReadRows(rg, local, 1)
	if err != nil {
		return record.Record{}, err
	}
	if len(rows) != 1 {
		return record.Record{}, errors.NewIndexOutOfRange(index, f.NumRows())
	}
	metrics.RowGroupsDecoded.Inc()
	return record.Sanitize(rows[0]), nil
}

// RowsRange calls fn with every row of [start, end) in index order. Rows past
// the end of the file are not an error; the range is truncated. fn returning
// an error stops the scan.
func (e *Engine) RowsRange(ctx context.Context, f *pq.File, start, end int64, fn func(index int64, r record.Record) error) (err error) {
	began := time.Now()
	sent := 0
	defer func() { e.done(ctx, OpRowsRange, f, sent, began, err) }()

	if start < 0 || end < start {
		return errors.NewInvalidArgument("range", fmt.Sprintf("[%d,%d)", start, end), "start must be in [0, end]")
	}
	end = min(end, f.NumRows())

	var base int64
	for rg := 0; rg < f.NumRowGroups() && start < end; rg++ {
		n := f.RowGroupRows(rg)
		if start >= base+n {
			base += n
			continue
		}
		for start < min(end, base+n) {
			if err := ctx.Err(); err != nil {
				return err
			}
			local := start - base
			count := min(int64(streamBatch), min(end, base+n)-start)
			rows, err := f.ReadRows(rg, local, count)
			if err != nil {
				return err
			}
			for i, r := range rows {
				if err := fn(start+int64(i), record.Sanitize(r)); err != nil {
					return err
				}
				sent++
			}
			start += int64(len(rows))
			if int64(len(rows)) < count {
				return fmt.Errorf("row group %d: short read: %w", rg, errors.ErrStoreCorrupt)
			}
		}
		metrics.RowGroupsDecoded.Inc()
		base += n
	}
	return nil
}

// TimeBounds returns the minimum and maximum timestamp of f in one pass over
// the timestamp column. Null and non-finite timestamps are ignored; a file
// without any timestamp yields ErrNotFound.
func (e *Engine) TimeBounds(ctx context.Context, f *pq.File) (_ Bounds, err error) {
	began := time.Now()
	defer func() { e.done(ctx, OpTimeBounds, f, 1, began, err) }()

	name, _, err := f.TimestampColumn()
	if err != nil {
		return Bounds{}, err
	}

	var (
		lo, hi int64
		seen   bool
	)
	err = f.ReadColumn(name, func(values []parquet.Value) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, v := range values {
			t, ok := timestamp(v)
			if !ok {
				continue
			}
			if !seen {
				lo, hi, seen = t, t, true
				continue
			}
			lo = min(lo, t)
			hi = max(hi, t)
		}
		return nil
	})
	if err != nil {
		return Bounds{}, err
	}
	if !seen {
		return Bounds{}, errors.NewNotFound("timestamps", f.Path())
	}
	return Bounds{Min: lo, Max: hi}, nil
}

// timestamp converts a timestamp value to int64. Floating point values are
// truncated toward negative infinity.
func timestamp(v parquet.Value) (int64, bool) {
	if v.IsNull() {
		return 0, false
	}
	switch v.Kind() {
	case parquet.Int32:
		return int64(v.Int32()), true
	case parquet.Int64:
		return v.Int64(), true
	case parquet.Float, parquet.Double:
		t, _ := pq.Numeric(v)
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(math.Floor(t)), true
	default:
		return 0, false
	}
}
