// Package config holds the runtime configuration of marine-anomaly: where the
// record store lives, where window stores are written, the extraction
// parameters and the serving layer settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/mohammed1916/marine-anomaly/config"
)

// Config represents the complete configuration.
type Config struct {
	// DataDir is the root directory of the Parquet record store.
	DataDir string `yaml:"data_dir"`

	// Output configures where window/label stores are persisted.
	Output OutputConfig `yaml:"output"`

	// Extract configures the window extractor and the chunked store writer.
	Extract ExtractConfig `yaml:"extract"`

	// Records configures Parquet files written by the convert command.
	Records RecordsConfig `yaml:"records"`

	// Server configures the HTTP serving layer.
	Server ServerConfig `yaml:"server"`

	// Query configures the analytics engine.
	Query QueryConfig `yaml:"query"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// OutputConfig selects and configures the kvstore driver for window stores.
type OutputConfig struct {
	// Driver is one of: file, memory, s3.
	Driver string `yaml:"driver"`

	// Path is the root directory (file driver) or key prefix (s3 driver).
	Path string `yaml:"path"`

	// S3 configures the s3 driver.
	S3 S3Config `yaml:"s3"`
}

// S3Config configures an S3-compatible object store.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ExtractConfig configures the write path.
type ExtractConfig struct {
	// WindowSize is the number of events per window.
	WindowSize int `yaml:"window_size"`

	// ChunkSize is the maximum number of windows materialized per batch.
	ChunkSize int `yaml:"chunk_size"`

	// StoreChunk is the persisted chunk extent along axis 0.
	StoreChunk int `yaml:"store_chunk"`

	// Workers is the number of goroutines evaluating offsets. 0 = GOMAXPROCS.
	Workers int `yaml:"workers"`

	// MemoryBudget caps transient bytes per batch. 0 disables the check.
	MemoryBudget int64 `yaml:"memory_budget"`

	// VerifySorted checks the (vessel, timestamp) ordering before extraction.
	VerifySorted bool `yaml:"verify_sorted"`

	// ParallelUnits is the number of processing units extracted concurrently.
	ParallelUnits int `yaml:"parallel_units"`

	// Compression configures the chunk codec.
	Compression CompressionConfig `yaml:"compression"`
}

// CompressionConfig configures a codec.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: zstd, lz4, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// RecordsConfig configures Parquet output of the convert command.
type RecordsConfig struct {
	// RowGroupSize is the number of rows per row group.
	RowGroupSize int `yaml:"row_group_size"`

	// Compression is the Parquet codec: snappy, zstd, lz4, gzip, none.
	Compression string `yaml:"compression"`
}

// ServerConfig configures the HTTP serving layer.
type ServerConfig struct {
	// Listen is the listen address.
	Listen string `yaml:"listen"`

	// CacheSize is the capacity of the result cache (entries).
	CacheSize int `yaml:"cache_size"`

	// CacheTTL is the lifetime of a cached result.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// AllowOrigins lists CORS origins.
	AllowOrigins []string `yaml:"allow_origins"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// QueryConfig configures the analytics engine.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the per-request query timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches to JSON output.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/parquet",
		Output: OutputConfig{
			Driver: defaults.DefaultOutputDriver,
			Path:   "./data/processed",
		},
		Extract: ExtractConfig{
			WindowSize:    defaults.DefaultWindowSize,
			ChunkSize:     defaults.DefaultChunkSize,
			StoreChunk:    defaults.DefaultStoreChunk,
			Workers:       runtime.GOMAXPROCS(0),
			MemoryBudget:  defaults.DefaultMemoryBudget,
			VerifySorted:  true,
			ParallelUnits: defaults.DefaultUnitParallelism,
			Compression: CompressionConfig{
				Algorithm: defaults.DefaultCompression,
				Level:     defaults.DefaultCompressionLevel,
			},
		},
		Records: RecordsConfig{
			RowGroupSize: defaults.DefaultRowGroupSize,
			Compression:  "zstd",
		},
		Server: ServerConfig{
			Listen:          defaults.DefaultListenAddress,
			CacheSize:       defaults.DefaultCacheSize,
			CacheTTL:        defaults.DefaultCacheTTL,
			AllowOrigins:    []string{"http://localhost:5173"},
			ShutdownTimeout: defaults.DefaultShutdownTimeout,
		},
		Query: QueryConfig{
			MemoryLimit: defaults.DefaultDuckDBMemoryLimit,
			Timeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// EnsureDirectories creates the local directories the configuration refers to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Output.Driver == "file" {
		dirs = append(dirs, c.Output.Path)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// RecordPath resolves a record store file name relative to DataDir.
func (c *Config) RecordPath(name string) string {
	return filepath.Join(c.DataDir, filepath.FromSlash(name))
}

// BatchBytes returns the transient bytes one batch of the configured size needs.
func (c *ExtractConfig) BatchBytes() int64 {
	n := int64(c.ChunkSize)
	return n*int64(c.WindowSize)*defaults.FeaturesPerStep*4 + n*4
}
