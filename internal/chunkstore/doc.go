// Package chunkstore persists dense n-dimensional arrays as Zarr v2
// compatible chunked stores on a key-value backend.
//
// An array named P lives under the key prefix P:
//
//	P/.zarray   array metadata (shape, chunks, dtype, compressor, fill value)
//	P/.zattrs   user attributes
//	P/0.0.0     chunk 0 (one key component per dimension)
//	P/1.0.0     chunk 1
//
// Arrays are chunked along axis 0 only; every other axis is a single chunk.
// Edge chunks are stored at full chunk size, padded with the fill value.
// Chunk objects are always replaced as a whole through KVStore.Put, so a
// reader sees either the previous or the new version of a chunk. Chunks never
// written read back as the fill value.
package chunkstore
