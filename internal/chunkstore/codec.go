package chunkstore

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
)

// Codec compresses whole chunk objects.
type Codec interface {
	// Meta returns the .zarray compressor entry, nil for no compression.
	Meta() *CompressorMeta

	// Encode compresses src.
	Encode(src []byte) ([]byte, error)

	// Decode decompresses src into a buffer of exactly size bytes.
	Decode(src []byte, size int) ([]byte, error)
}

// NewCodec returns the codec for name: zstd, lz4 or none.
func NewCodec(name string, level int) (Codec, error) {
	switch name {
	case "zstd":
		if level <= 0 {
			level = 3
		}
		c, err := newZstdCodec(level)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "lz4":
		return lz4Codec{}, nil
	case "none", "":
		return noneCodec{}, nil
	default:
		return nil, errors.NewInvalidArgument("compressor", name, "supported: zstd, lz4, none")
	}
}

// codecFromMeta returns the codec described by a .zarray compressor entry.
func codecFromMeta(m *CompressorMeta) (Codec, error) {
	if m == nil {
		return noneCodec{}, nil
	}
	return NewCodec(m.ID, m.Level)
}

type noneCodec struct{}

func (noneCodec) Meta() *CompressorMeta { return nil }

func (noneCodec) Encode(src []byte) ([]byte, error) { return src, nil }

func (noneCodec) Decode(src []byte, size int) ([]byte, error) {
	if len(src) != size {
		return nil, fmt.Errorf("raw chunk is %d bytes, want %d: %w", len(src), size, errors.ErrStoreCorrupt)
	}
	return src, nil
}

// zstdCodec holds one encoder and one decoder; EncodeAll and DecodeAll are
// safe for concurrent use.
type zstdCodec struct {
	level int
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func newZstdCodec(level int) (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCodec{level: level, enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Meta() *CompressorMeta {
	return &CompressorMeta{ID: "zstd", Level: c.level}
}

func (c *zstdCodec) Encode(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

func (c *zstdCodec) Decode(src []byte, size int) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd: %v: %w", err, errors.ErrStoreCorrupt)
	}
	if len(out) != size {
		return nil, fmt.Errorf("zstd chunk is %d bytes, want %d: %w", len(out), size, errors.ErrStoreCorrupt)
	}
	return out, nil
}

// lz4Codec writes lz4 blocks prefixed with the uncompressed size as a
// little-endian uint32.
type lz4Codec struct{}

const lz4SizePrefix = 4

func (lz4Codec) Meta() *CompressorMeta {
	return &CompressorMeta{ID: "lz4", Acceleration: 1}
}

func (lz4Codec) Encode(src []byte) ([]byte, error) {
	out := make([]byte, lz4SizePrefix+lz4.CompressBlockBound(len(src)))
	binary.LittleEndian.PutUint32(out, uint32(len(src)))

	var c lz4.Compressor
	n, err := c.CompressBlock(src, out[lz4SizePrefix:])
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if n == 0 {
		// incompressible input
		n = lz4Literals(out[lz4SizePrefix:], src)
	}
	return out[:lz4SizePrefix+n], nil
}

// lz4Literals writes src as a single literal-only lz4 sequence.
func lz4Literals(dst, src []byte) int {
	n := len(src)
	i := 1
	if n < 15 {
		dst[0] = byte(n << 4)
	} else {
		dst[0] = 0xF0
		for r := n - 15; ; r -= 255 {
			if r < 255 {
				dst[i] = byte(r)
				i++
				break
			}
			dst[i] = 255
			i++
		}
	}
	return i + copy(dst[i:], src)
}

func (lz4Codec) Decode(src []byte, size int) ([]byte, error) {
	if len(src) < lz4SizePrefix {
		return nil, fmt.Errorf("lz4 chunk too small: %w", errors.ErrStoreCorrupt)
	}
	if n := int(binary.LittleEndian.Uint32(src)); n != size {
		return nil, fmt.Errorf("lz4 chunk declares %d bytes, want %d: %w", n, size, errors.ErrStoreCorrupt)
	}

	out := make([]byte, size)
	n, err := lz4.UncompressBlock(src[lz4SizePrefix:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4: %v: %w", err, errors.ErrStoreCorrupt)
	}
	if n != size {
		return nil, fmt.Errorf("lz4 chunk is %d bytes, want %d: %w", n, size, errors.ErrStoreCorrupt)
	}
	return out, nil
}
