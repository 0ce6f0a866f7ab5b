// Package config provides configuration defaults for marine-anomaly.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Extraction Defaults
// =============================================================================

const (
	// DefaultWindowSize is the number of consecutive events per window.
	// Override via config: extract.window_size
	DefaultWindowSize = 128

	// DefaultChunkSize is the maximum number of windows materialized at once.
	// It bounds peak transient memory to chunk_size * window_size * 5 floats.
	// Override via config: extract.chunk_size
	DefaultChunkSize = 500_000

	// DefaultStoreChunk is the physical chunk extent along axis 0 of the
	// persisted window and label arrays.
	// Override via config: extract.store_chunk
	DefaultStoreChunk = 1024

	// DefaultMemoryBudget caps the transient buffers of a single batch.
	// 0 disables the check.
	// Override via config: extract.memory_budget
	DefaultMemoryBudget int64 = 2 << 30 // 2 GiB

	// DefaultUnitParallelism is how many processing units (months) are
	// extracted concurrently. Each unit owns its buffers and stores.
	// Override via config: extract.parallel_units
	DefaultUnitParallelism = 1
)

// =============================================================================
// Feature Bounds
// =============================================================================

const (
	// MaxSpeed is the upper clamp bound for speed over ground (knots).
	MaxSpeed = 100.0

	// MaxCourse is the upper clamp bound for course over ground (degrees).
	MaxCourse = 360.0

	// FeaturesPerStep is the number of features stored per event:
	// lat, lon, speed, course, timestamp.
	FeaturesPerStep = 5
)

// =============================================================================
// Output Store Defaults
// =============================================================================

const (
	// DefaultOutputDriver is the kvstore driver for window stores.
	// Supported: file, memory, s3
	// Override via config: output.driver
	DefaultOutputDriver = "file"

	// DefaultCompression is the chunk codec.
	// Supported: zstd, lz4, none
	// Override via config: extract.compression
	DefaultCompression = "zstd"

	// DefaultCompressionLevel is the zstd level (1-22).
	// Override via config: extract.compression_level
	DefaultCompressionLevel = 3
)

// =============================================================================
// Record Store Defaults
// =============================================================================

const (
	// DefaultRowGroupSize is the number of rows per Parquet row group
	// written by the convert command.
	// Override via config: records.row_group_size
	DefaultRowGroupSize = 100_000
)

// =============================================================================
// Server Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: server.listen
	DefaultListenAddress = "127.0.0.1:8000"

	// DefaultCacheSize is the capacity of the query result cache.
	// Override via config: server.cache_size
	DefaultCacheSize = 512

	// DefaultCacheTTL is how long cached results stay valid.
	// Override via config: server.cache_ttl
	DefaultCacheTTL = 10 * time.Minute

	// DefaultStreamRows is the default end index of /rows/stream.
	DefaultStreamRows = 100

	// DefaultHeatmapCell is the default heatmap cell size in degrees.
	DefaultHeatmapCell = 0.001

	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultDuckDBMemoryLimit is the DuckDB memory limit for analytics queries.
	// Override via config: query.memory_limit
	DefaultDuckDBMemoryLimit = "2GB"

	// DefaultGapSampleWindows is the number of windows sampled for gap statistics.
	DefaultGapSampleWindows = 10_000
)
