package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int

	// RowGroupSize is the number of rows per row group. Every full group is
	// flushed as its own row group.
	RowGroupSize int

	// PageSize is the target page size in bytes
	PageSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
		RowGroupSize:     100000,
		PageSize:         1024 * 1024, // 1MB
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// EventRow is one AIS position report in the record store.
type EventRow struct {
	T        int64    `parquet:"t"`
	VesselID int64    `parquet:"vessel_id"`
	Lat      float64  `parquet:"lat"`
	Lon      float64  `parquet:"lon"`
	Speed    float64  `parquet:"speed"`
	Course   float64  `parquet:"course"`
	Heading  *float64 `parquet:"heading,optional"`
}

// EventWriter writes event rows to a Parquet file.
type EventWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[EventRow]
	groupMax int
	pending  int
	rowCount int64
	groups   int
	closed   bool
}

// NewEventWriter creates a new event Parquet writer.
func NewEventWriter(path string, opts Options) (*EventWriter, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}
	if opts.PageSize > 0 {
		writerOpts = append(writerOpts, parquet.PageBufferSize(opts.PageSize))
	}

	groupMax := opts.RowGroupSize
	if groupMax <= 0 {
		groupMax = DefaultOptions().RowGroupSize
	}

	return &EventWriter{
		path:     path,
		file:     f,
		writer:   parquet.NewGenericWriter[EventRow](f, writerOpts...),
		groupMax: groupMax,
	}, nil
}

// Write appends rows, closing a row group every RowGroupSize rows.
func (w *EventWriter) Write(rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	for len(rows) > 0 {
		n := w.groupMax - w.pending
		if n > len(rows) {
			n = len(rows)
		}

		written, err := w.writer.Write(rows[:n])
		if err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		w.rowCount += int64(written)
		w.pending += written
		rows = rows[n:]

		if w.pending == w.groupMax {
			if err := w.flushLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush closes the current row group, if it holds any rows.
func (w *EventWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	return w.flushLocked()
}

func (w *EventWriter) flushLocked() error {
	if w.pending == 0 {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush row group: %w", err)
	}
	w.pending = 0
	w.groups++
	return nil
}

// Close closes the writer.
func (w *EventWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flushLocked(); err != nil {
		w.file.Close()
		return err
	}

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *EventWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// RowGroups returns the number of row groups flushed so far.
func (w *EventWriter) RowGroups() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.groups
}

// Path returns the file path.
func (w *EventWriter) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
