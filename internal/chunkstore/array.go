package chunkstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
)

const elemSize = 4

// Array is a chunked array persisted under a key prefix of a KVStore.
// An Array is not safe for concurrent writers.
type Array struct {
	kv       KVStore
	prefix   string
	meta     Metadata
	codec    Codec
	rowElems int
	fill     [elemSize]byte
}

// Create creates a new array. It fails with ErrAlreadyExists if prefix
// already holds an array.
func Create(ctx context.Context, kv KVStore, prefix string, meta Metadata) (*Array, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if _, err := kv.Get(ctx, Join(prefix, ArrayKey)); err == nil {
		return nil, fmt.Errorf("array %s: %w", prefix, errors.ErrAlreadyExists)
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	a, err := newArray(kv, prefix, meta)
	if err != nil {
		return nil, err
	}

	data, err := encodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	if err := kv.Put(ctx, Join(prefix, ArrayKey), data); err != nil {
		return nil, fmt.Errorf("write %s/%s: %w", prefix, ArrayKey, err)
	}
	return a, nil
}

// Open opens an existing array.
func Open(ctx context.Context, kv KVStore, prefix string) (*Array, error) {
	data, err := kv.Get(ctx, Join(prefix, ArrayKey))
	if err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("array %s: %w", prefix, err)
	}
	return newArray(kv, prefix, meta)
}

func newArray(kv KVStore, prefix string, meta Metadata) (*Array, error) {
	codec, err := codecFromMeta(meta.Compressor)
	if err != nil {
		return nil, err
	}

	rowElems := 1
	for _, d := range meta.Shape[1:] {
		rowElems *= d
	}

	a := &Array{
		kv:       kv,
		prefix:   prefix,
		meta:     meta,
		codec:    codec,
		rowElems: rowElems,
	}
	switch meta.DType {
	case Float32:
		binary.LittleEndian.PutUint32(a.fill[:], math.Float32bits(float32(meta.FillValue)))
	case Int32:
		binary.LittleEndian.PutUint32(a.fill[:], uint32(int32(meta.FillValue)))
	}
	return a, nil
}

// Prefix returns the key prefix of the array.
func (a *Array) Prefix() string {
	return a.prefix
}

// Metadata returns the array metadata.
func (a *Array) Metadata() Metadata {
	return a.meta
}

// Rows returns the extent of axis 0.
func (a *Array) Rows() int {
	return a.meta.Shape[0]
}

// RowElems returns the number of elements per axis-0 row.
func (a *Array) RowElems() int {
	return a.rowElems
}

// ChunkRows returns the chunk extent along axis 0.
func (a *Array) ChunkRows() int {
	return a.meta.Chunks[0]
}

// NumChunks returns the number of chunks along axis 0.
func (a *Array) NumChunks() int {
	return (a.Rows() + a.ChunkRows() - 1) / a.ChunkRows()
}

// ChunkKey returns the key of chunk i.
func (a *Array) ChunkKey(i int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(i))
	for range a.meta.Shape[1:] {
		b.WriteString(a.meta.DimensionSeparator)
		b.WriteByte('0')
	}
	return Join(a.prefix, b.String())
}

func (a *Array) chunkBytes() int {
	return a.ChunkRows() * a.rowElems * elemSize
}

func (a *Array) rowBytes() int {
	return a.rowElems * elemSize
}

// WriteFloat32 writes rows [start, start+len(data)/RowElems()) of a float32 array.
func (a *Array) WriteFloat32(ctx context.Context, start int, data []float32) error {
	if a.meta.DType != Float32 {
		return errors.NewInvalidArgument("dtype", a.meta.DType, "not a float32 array")
	}
	raw := make([]byte, len(data)*elemSize)
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*elemSize:], math.Float32bits(v))
	}
	return a.writeRaw(ctx, start, raw)
}

// WriteInt32 writes rows [start, start+len(data)/RowElems()) of an int32 array.
func (a *Array) WriteInt32(ctx context.Context, start int, data []int32) error {
	if a.meta.DType != Int32 {
		return errors.NewInvalidArgument("dtype", a.meta.DType, "not an int32 array")
	}
	raw := make([]byte, len(data)*elemSize)
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*elemSize:], uint32(v))
	}
	return a.writeRaw(ctx, start, raw)
}

// ReadFloat32 reads count rows starting at start of a float32 array.
func (a *Array) ReadFloat32(ctx context.Context, start, count int) ([]float32, error) {
	if a.meta.DType != Float32 {
		return nil, errors.NewInvalidArgument("dtype", a.meta.DType, "not a float32 array")
	}
	raw, err := a.readRaw(ctx, start, count)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(raw)/elemSize)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*elemSize:]))
	}
	return out, nil
}

// ReadInt32 reads count rows starting at start of an int32 array.
func (a *Array) ReadInt32(ctx context.Context, start, count int) ([]int32, error) {
	if a.meta.DType != Int32 {
		return nil, errors.NewInvalidArgument("dtype", a.meta.DType, "not an int32 array")
	}
	raw, err := a.readRaw(ctx, start, count)
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(raw)/elemSize)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(raw[i*elemSize:]))
	}
	return out, nil
}

func (a *Array) checkRange(start, count int) error {
	if start < 0 || count < 0 || start+count > a.Rows() {
		return errors.NewInvalidArgument("rows", fmt.Sprintf("[%d,%d)", start, start+count),
			fmt.Sprintf("outside [0,%d)", a.Rows()))
	}
	return nil
}

// writeRaw writes whole rows. Chunks fully covered by the write are encoded
// from the new data alone; partially covered chunks are read, patched and
// replaced.
func (a *Array) writeRaw(ctx context.Context, start int, raw []byte) error {
	rb := a.rowBytes()
	if len(raw)%rb != 0 {
		return errors.NewInvalidArgument("data", len(raw)/elemSize, fmt.Sprintf("not a multiple of %d elements", a.rowElems))
	}
	count := len(raw) / rb
	if err := a.checkRange(start, count); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	cr := a.ChunkRows()
	end := start + count
	for c := start / cr; c*cr < end; c++ {
		chunkStart := c * cr
		chunkEnd := min(chunkStart+cr, a.Rows())
		lo := max(start, chunkStart)
		hi := min(end, chunkEnd)

		var buf []byte
		if lo == chunkStart && hi == chunkEnd {
			buf = a.fillChunk()
		} else {
			existing, err := a.readChunk(ctx, c)
			if err != nil {
				return err
			}
			buf = existing
		}
		copy(buf[(lo-chunkStart)*rb:(hi-chunkStart)*rb], raw[(lo-start)*rb:(hi-start)*rb])

		enc, err := a.codec.Encode(buf)
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", c, err)
		}
		if err := a.kv.Put(ctx, a.ChunkKey(c), enc); err != nil {
			return fmt.Errorf("write chunk %d: %w", c, err)
		}
	}
	return nil
}

func (a *Array) readRaw(ctx context.Context, start, count int) ([]byte, error) {
	if err := a.checkRange(start, count); err != nil {
		return nil, err
	}
	rb := a.rowBytes()
	out := make([]byte, count*rb)
	if count == 0 {
		return out, nil
	}

	cr := a.ChunkRows()
	end := start + count
	for c := start / cr; c*cr < end; c++ {
		chunkStart := c * cr
		lo := max(start, chunkStart)
		hi := min(end, chunkStart+cr)

		buf, err := a.readChunk(ctx, c)
		if err != nil {
			return nil, err
		}
		copy(out[(lo-start)*rb:(hi-start)*rb], buf[(lo-chunkStart)*rb:(hi-chunkStart)*rb])
	}
	return out, nil
}

// readChunk returns the decoded chunk c, or a fill chunk if it was never written.
func (a *Array) readChunk(ctx context.Context, c int) ([]byte, error) {
	data, err := a.kv.Get(ctx, a.ChunkKey(c))
	if err != nil {
		if errors.IsNotFound(err) {
			return a.fillChunk(), nil
		}
		return nil, fmt.Errorf("read chunk %d: %w", c, err)
	}
	buf, err := a.codec.Decode(data, a.chunkBytes())
	if err != nil {
		return nil, fmt.Errorf("chunk %d of %s: %w", c, a.prefix, err)
	}
	return buf, nil
}

func (a *Array) fillChunk() []byte {
	buf := make([]byte, a.chunkBytes())
	if a.fill != [elemSize]byte{} {
		for i := 0; i < len(buf); i += elemSize {
			copy(buf[i:], a.fill[:])
		}
	}
	return buf
}

// Attrs returns the user attributes of the array; an array without a
// .zattrs object has no attributes.
func (a *Array) Attrs(ctx context.Context) (map[string]any, error) {
	data, err := a.kv.Get(ctx, Join(a.prefix, AttrsKey))
	if err != nil {
		if errors.IsNotFound(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	attrs := make(map[string]any)
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %v: %w", a.prefix, AttrsKey, err, errors.ErrStoreCorrupt)
	}
	return attrs, nil
}

// SetAttrs replaces the user attributes of the array.
func (a *Array) SetAttrs(ctx context.Context, attrs map[string]any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return a.kv.Put(ctx, Join(a.prefix, AttrsKey), data)
}
