package chunkstore

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
)

// Element types.
const (
	Float32 = "<f4"
	Int32   = "<i4"
)

// Metadata keys.
const (
	ArrayKey = ".zarray"
	AttrsKey = ".zattrs"
)

// Metadata is the content of a .zarray object.
type Metadata struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	DType              string          `json:"dtype"`
	Compressor         *CompressorMeta `json:"compressor"`
	FillValue          float64         `json:"fill_value"`
	Order              string          `json:"order"`
	Filters            []any           `json:"filters"`
	DimensionSeparator string          `json:"dimension_separator"`
}

// CompressorMeta is the compressor entry of a .zarray object.
type CompressorMeta struct {
	ID           string `json:"id"`
	Level        int    `json:"level,omitempty"`
	Acceleration int    `json:"acceleration,omitempty"`
}

// NewMetadata returns metadata for a C-ordered array chunked along axis 0.
func NewMetadata(dtype string, shape []int, chunkRows int, codec Codec, fill float64) Metadata {
	chunks := make([]int, len(shape))
	copy(chunks, shape)
	chunks[0] = max(chunkRows, 1)
	for i := 1; i < len(chunks); i++ {
		chunks[i] = max(chunks[i], 1)
	}
	if codec == nil {
		codec = noneCodec{}
	}
	return Metadata{
		ZarrFormat:         2,
		Shape:              shape,
		Chunks:             chunks,
		DType:              dtype,
		Compressor:         codec.Meta(),
		FillValue:          fill,
		Order:              "C",
		DimensionSeparator: ".",
	}
}

// Validate checks that the metadata describes an array this package can read.
func (m *Metadata) Validate() error {
	if m.ZarrFormat != 2 {
		return fmt.Errorf("zarr_format %d: %w", m.ZarrFormat, errors.ErrStoreCorrupt)
	}
	if len(m.Shape) == 0 || len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("shape %v chunks %v: %w", m.Shape, m.Chunks, errors.ErrStoreCorrupt)
	}
	for i := range m.Shape {
		if m.Shape[i] < 0 || m.Chunks[i] <= 0 {
			return fmt.Errorf("shape %v chunks %v: %w", m.Shape, m.Chunks, errors.ErrStoreCorrupt)
		}
		if i > 0 && m.Chunks[i] != max(m.Shape[i], 1) {
			return fmt.Errorf("axis %d is chunked: %w", i, errors.ErrStoreCorrupt)
		}
	}
	if m.DType != Float32 && m.DType != Int32 {
		return fmt.Errorf("dtype %q: %w", m.DType, errors.ErrStoreCorrupt)
	}
	if m.Order != "C" {
		return fmt.Errorf("order %q: %w", m.Order, errors.ErrStoreCorrupt)
	}
	return nil
}

func encodeMetadata(m Metadata) ([]byte, error) {
	return json.MarshalIndent(m, "", "    ")
}

func decodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode %s: %v: %w", ArrayKey, err, errors.ErrStoreCorrupt)
	}
	if m.DimensionSeparator == "" {
		m.DimensionSeparator = "."
	}
	return m, m.Validate()
}
