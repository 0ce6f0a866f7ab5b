// Package parquet implements the columnar record store: Parquet files of AIS
// position reports grouped into row groups.
//
// The package provides:
//   - EventWriter for building record store files (one row group per RowGroupSize rows)
//   - File for row-group and column-chunk access (the basis of the range query engine)
//   - ListFiles for enumerating the files under the data directory
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package parquet
