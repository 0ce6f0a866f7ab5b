package parquet

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/record"
)

// TimestampColumns lists the recognised timestamp column names in lookup order.
var TimestampColumns = []string{"t", "timestamp"}

// readBatch is the number of rows or values decoded per read call.
const readBatch = 1024

// File is an open record store file. A File is safe for concurrent readers;
// every call builds its own row and page readers.
type File struct {
	file    *os.File
	pf      *parquet.File
	path    string
	columns []string
	counts  []int64
	total   int64
}

// Open opens a Parquet file of the record store.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	columns := make([]string, 0)
	for _, p := range pf.Schema().Columns() {
		columns = append(columns, strings.Join(p, "."))
	}

	groups := pf.RowGroups()
	counts := make([]int64, len(groups))
	var total int64
	for i, rg := range groups {
		counts[i] = rg.NumRows()
		total += counts[i]
	}

	return &File{
		file:    f,
		pf:      pf,
		path:    path,
		columns: columns,
		counts:  counts,
		total:   total,
	}, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.file.Close()
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// NumRows returns the total number of rows in the file.
func (f *File) NumRows() int64 {
	return f.total
}

// NumRowGroups returns the number of row groups.
func (f *File) NumRowGroups() int {
	return len(f.counts)
}

// RowGroupRows returns the row count of row group i.
func (f *File) RowGroupRows(i int) int64 {
	return f.counts[i]
}

// Columns returns the leaf column names in schema order.
func (f *File) Columns() []string {
	return f.columns
}

// ColumnIndex returns the leaf index of the named column.
func (f *File) ColumnIndex(name string) (int, bool) {
	leaf, ok := f.pf.Schema().Lookup(name)
	if !ok {
		return 0, false
	}
	return leaf.ColumnIndex, true
}

// TimestampColumn resolves the timestamp column, "t" first, then "timestamp".
func (f *File) TimestampColumn() (string, int, error) {
	for _, name := range TimestampColumns {
		if idx, ok := f.ColumnIndex(name); ok {
			return name, idx, nil
		}
	}
	return "", 0, errors.NewMissingField("timestamp (t|timestamp)")
}

// ScanColumn decodes one column chunk of row group rg page by page and calls
// fn with each batch of values in row order. Other columns are not read.
func (f *File) ScanColumn(rg, col int, fn func(values []parquet.Value) error) error {
	chunk := f.pf.RowGroups()[rg].ColumnChunks()[col]
	pages := chunk.Pages()
	defer pages.Close()

	buf := make([]parquet.Value, readBatch)
	for {
		page, err := pages.ReadPage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read page rg=%d col=%d: %w", rg, col, err)
		}

		values := page.Values()
		for {
			n, err := values.ReadValues(buf)
			if n > 0 {
				if ferr := fn(buf[:n]); ferr != nil {
					return ferr
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("read values rg=%d col=%d: %w", rg, col, err)
			}
		}
	}
}

// ReadColumn scans the named column over every row group in file order.
func (f *File) ReadColumn(name string, fn func(values []parquet.Value) error) error {
	col, ok := f.ColumnIndex(name)
	if !ok {
		return errors.NewMissingField(name)
	}
	for rg := range f.counts {
		if err := f.ScanColumn(rg, col, fn); err != nil {
			return err
		}
	}
	return nil
}

// ReadRowGroup decodes every row of row group rg.
func (f *File) ReadRowGroup(rg int) ([]record.Record, error) {
	return f.ReadRows(rg, 0, f.counts[rg])
}

// ReadRows decodes count rows of row group rg starting at local offset start.
func (f *File) ReadRows(rg int, start, count int64) ([]record.Record, error) {
	if start < 0 || start+count > f.counts[rg] {
		return nil, errors.NewIndexOutOfRange(start+count, f.counts[rg])
	}

	rows := f.pf.RowGroups()[rg].Rows()
	defer rows.Close()

	if start > 0 {
		if err := rows.SeekToRow(start); err != nil {
			return nil, fmt.Errorf("seek row %d in group %d: %w", start, rg, err)
		}
	}

	out := make([]record.Record, 0, count)
	buf := make([]parquet.Row, min(int64(readBatch), max(count, 1)))
	for int64(len(out)) < count {
		want := min(int64(len(buf)), count-int64(len(out)))
		n, err := rows.ReadRows(buf[:want])
		for i := 0; i < n; i++ {
			out = append(out, f.toRecord(buf[i]))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows of group %d: %w", rg, err)
		}
	}
	return out, nil
}

// Locate maps a global row index to its row group and local offset.
func (f *File) Locate(index int64) (int, int64, error) {
	if index < 0 || index >= f.total {
		return 0, 0, errors.NewIndexOutOfRange(index, f.total)
	}
	for rg, n := range f.counts {
		if index < n {
			return rg, index, nil
		}
		index -= n
	}
	return 0, 0, errors.NewIndexOutOfRange(index, f.total)
}

func (f *File) toRecord(row parquet.Row) record.Record {
	r := record.New(len(f.columns))
	for _, name := range f.columns {
		r.Set(name, nil)
	}
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(r.Fields) {
			continue
		}
		r.Fields[col].Value = ValueOf(v)
	}
	return r
}

// ValueOf converts a parquet value to its natural Go type.
func ValueOf(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

// Numeric returns v as float64. ok is false for null and non-numeric values.
func Numeric(v parquet.Value) (float64, bool) {
	if v.IsNull() {
		return 0, false
	}
	switch v.Kind() {
	case parquet.Int32:
		return float64(v.Int32()), true
	case parquet.Int64:
		return float64(v.Int64()), true
	case parquet.Float:
		return float64(v.Float()), true
	case parquet.Double:
		return v.Double(), true
	default:
		return 0, false
	}
}
