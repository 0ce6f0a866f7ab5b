package windows

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/mohammed1916/marine-anomaly/internal/chunkstore"
	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/extract"
)

// Reader reads a persisted window/label store pair.
type Reader struct {
	kv        chunkstore.KVStore
	key       Key
	windows   *chunkstore.Array
	labels    *chunkstore.Array
	committed int
	complete  bool
}

// OpenPair opens the stores of key and checks that they are aligned.
func OpenPair(ctx context.Context, kv chunkstore.KVStore, key Key) (*Reader, error) {
	wa, err := chunkstore.Open(ctx, kv, key.WindowsName())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key.WindowsName(), err)
	}
	la, err := chunkstore.Open(ctx, kv, key.LabelsName())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key.LabelsName(), err)
	}

	wm, lm := wa.Metadata(), la.Metadata()
	if wm.DType != chunkstore.Float32 || lm.DType != chunkstore.Int32 {
		return nil, fmt.Errorf("unit %s: dtypes %s/%s: %w", key, wm.DType, lm.DType, errors.ErrShapeMismatch)
	}
	if len(wm.Shape) != 3 || wm.Shape[2] != extract.Features || len(lm.Shape) != 1 {
		return nil, fmt.Errorf("unit %s: shapes %v/%v: %w", key, wm.Shape, lm.Shape, errors.ErrShapeMismatch)
	}
	if wm.Shape[0] != lm.Shape[0] {
		return nil, fmt.Errorf("unit %s: %d windows but %d labels: %w", key, wm.Shape[0], lm.Shape[0], errors.ErrShapeMismatch)
	}

	wattrs, err := wa.Attrs(ctx)
	if err != nil {
		return nil, err
	}
	lattrs, err := la.Attrs(ctx)
	if err != nil {
		return nil, err
	}

	committed := min(intAttr(wattrs, AttrCommitted), intAttr(lattrs, AttrCommitted), wa.Rows())
	return &Reader{
		kv:        kv,
		key:       key,
		windows:   wa,
		labels:    la,
		committed: max(committed, 0),
		complete:  boolAttr(wattrs, AttrComplete) && boolAttr(lattrs, AttrComplete),
	}, nil
}

func intAttr(attrs map[string]any, name string) int {
	switch v := attrs[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func boolAttr(attrs map[string]any, name string) bool {
	b, _ := attrs[name].(bool)
	return b
}

// Key returns the unit of the pair.
func (r *Reader) Key() Key {
	return r.key
}

// NumWindows returns the number of committed windows.
func (r *Reader) NumWindows() int {
	return r.committed
}

// TotalWindows returns the declared number of windows.
func (r *Reader) TotalWindows() int {
	return r.windows.Rows()
}

// WindowSize returns the number of steps per window.
func (r *Reader) WindowSize() int {
	return r.windows.Metadata().Shape[1]
}

// Complete reports whether every batch of the unit was committed.
func (r *Reader) Complete() bool {
	return r.complete
}

func (r *Reader) checkRange(start, count int) error {
	if start < 0 || count < 0 || start+count > r.committed {
		return errors.NewIndexOutOfRange(int64(start+count-1), int64(r.committed))
	}
	return nil
}

// Window returns window i as WindowSize()*5 values in step-major order.
func (r *Reader) Window(ctx context.Context, i int) ([]float32, error) {
	return r.Windows(ctx, i, 1)
}

// Windows returns windows [start, start+count).
func (r *Reader) Windows(ctx context.Context, start, count int) ([]float32, error) {
	if err := r.checkRange(start, count); err != nil {
		return nil, err
	}
	return r.windows.ReadFloat32(ctx, start, count)
}

// Labels returns labels [start, start+count).
func (r *Reader) Labels(ctx context.Context, start, count int) ([]int32, error) {
	if err := r.checkRange(start, count); err != nil {
		return nil, err
	}
	return r.labels.ReadInt32(ctx, start, count)
}

// ValidOffsets returns the offsets of the committed valid windows. A complete
// unit serves them from its bitmap; otherwise the labels are scanned.
func (r *Reader) ValidOffsets(ctx context.Context) (*roaring.Bitmap, error) {
	if r.complete {
		data, err := r.kv.Get(ctx, r.key.ValidName())
		if err == nil {
			bm := roaring.New()
			if err := bm.UnmarshalBinary(data); err != nil {
				return nil, fmt.Errorf("decode %s: %v: %w", r.key.ValidName(), err, errors.ErrStoreCorrupt)
			}
			return bm, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	bm := roaring.New()
	step := max(r.labels.ChunkRows(), 1)
	for start := 0; start < r.committed; start += step {
		count := min(step, r.committed-start)
		labels, err := r.labels.ReadInt32(ctx, start, count)
		if err != nil {
			return nil, err
		}
		for i, l := range labels {
			if l != extract.LabelInvalid {
				bm.Add(uint32(start + i))
			}
		}
	}
	return bm, nil
}
