package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	// DataDir
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	// Output
	if err := c.Output.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}

	// Extract
	if err := c.Extract.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("extract: %w", err))
	}

	// Records
	if err := c.Records.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("records: %w", err))
	}

	// Server
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the output configuration.
func (c *OutputConfig) Validate() error {
	var errs []error

	switch c.Driver {
	case "file":
		if c.Path == "" {
			errs = append(errs, errors.New("path is required for the file driver"))
		}
	case "memory":
	case "s3":
		if c.S3.Endpoint == "" {
			errs = append(errs, errors.New("s3.endpoint is required"))
		}
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3.bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("driver must be one of: file, memory, s3 (got %q)", c.Driver))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the extraction configuration.
func (c *ExtractConfig) Validate() error {
	var errs []error

	if c.WindowSize <= 0 {
		errs = append(errs, errors.New("window_size must be positive"))
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk_size must be positive"))
	}

	if c.StoreChunk <= 0 {
		errs = append(errs, errors.New("store_chunk must be positive"))
	}

	if c.Workers < 0 {
		errs = append(errs, errors.New("workers must not be negative"))
	}

	if c.MemoryBudget < 0 {
		errs = append(errs, errors.New("memory_budget must not be negative"))
	}

	if c.ParallelUnits < 0 {
		errs = append(errs, errors.New("parallel_units must not be negative"))
	}

	validAlgorithms := map[string]bool{
		"zstd": true,
		"lz4":  true,
		"none": true,
		"":     true, // Empty means no compression
	}
	if !validAlgorithms[c.Compression.Algorithm] {
		errs = append(errs, fmt.Errorf("compression.algorithm must be one of: zstd, lz4, none"))
	}

	if c.Compression.Algorithm == "zstd" && (c.Compression.Level < 0 || c.Compression.Level > 22) {
		errs = append(errs, errors.New("compression.level for zstd must be between 0 and 22"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the records configuration.
func (c *RecordsConfig) Validate() error {
	if c.RowGroupSize <= 0 {
		return errors.New("row_group_size must be positive")
	}

	switch c.Compression {
	case "snappy", "zstd", "lz4", "gzip", "none", "":
		return nil
	default:
		return fmt.Errorf("compression must be one of: snappy, zstd, lz4, gzip, none")
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}

	if c.CacheSize <= 0 {
		errs = append(errs, errors.New("cache_size must be positive"))
	}

	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("cache_ttl must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
