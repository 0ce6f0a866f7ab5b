package windows

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/mohammed1916/marine-anomaly/internal/chunkstore"
	"github.com/mohammed1916/marine-anomaly/internal/config"
	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/events"
	"github.com/mohammed1916/marine-anomaly/internal/extract"
	"github.com/mohammed1916/marine-anomaly/internal/logging"
	"github.com/mohammed1916/marine-anomaly/internal/metrics"
	"github.com/mohammed1916/marine-anomaly/internal/storage/buffer"
)

// Attribute keys recorded in .zattrs of both arrays.
const (
	AttrCommitted  = "committed"
	AttrComplete   = "complete"
	AttrUnit       = "unit"
	AttrWindowSize = "window_size"
	AttrChunkSize  = "chunk_size"
	AttrFeatures   = "features"
	AttrValid      = "num_valid"
)

// FeatureNames lists the per-step features in storage order.
var FeatureNames = []string{"lat", "lon", "speed", "course", "timestamp"}

// Options configures one ExtractAndPersist call.
type Options struct {
	// WindowSize is the number of events per window.
	WindowSize int

	// ChunkSize is the maximum number of windows materialized per batch.
	ChunkSize int

	// StoreChunk is the persisted chunk extent along axis 0.
	StoreChunk int

	// Workers is the number of goroutines evaluating offsets. 0 = GOMAXPROCS.
	Workers int

	// MemoryBudget caps the transient bytes of one batch. 0 disables the check.
	MemoryBudget int64

	// VerifySorted rejects input that is not grouped by vessel and sorted
	// by timestamp.
	VerifySorted bool

	// Codec compresses chunk objects. nil stores them raw.
	Codec chunkstore.Codec
}

// OptionsFromConfig builds Options from the extract section of the config.
func OptionsFromConfig(cfg config.ExtractConfig) (Options, error) {
	codec, err := chunkstore.NewCodec(cfg.Compression.Algorithm, cfg.Compression.Level)
	if err != nil {
		return Options{}, err
	}
	return Options{
		WindowSize:   cfg.WindowSize,
		ChunkSize:    cfg.ChunkSize,
		StoreChunk:   cfg.StoreChunk,
		Workers:      cfg.Workers,
		MemoryBudget: cfg.MemoryBudget,
		VerifySorted: cfg.VerifySorted,
		Codec:        codec,
	}, nil
}

// Validate checks the options.
func (o *Options) Validate() error {
	var errs []error
	if o.WindowSize <= 0 {
		errs = append(errs, errors.NewInvalidArgument("window_size", o.WindowSize, "must be positive"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, errors.NewInvalidArgument("chunk_size", o.ChunkSize, "must be positive"))
	}
	if o.StoreChunk <= 0 {
		errs = append(errs, errors.NewInvalidArgument("store_chunk", o.StoreChunk, "must be positive"))
	}
	if o.MemoryBudget < 0 {
		errs = append(errs, errors.NewInvalidArgument("memory_budget", o.MemoryBudget, "must not be negative"))
	}
	return errors.Join(errs...)
}

// BatchBytes returns the transient bytes one batch of ChunkSize windows needs.
func (o *Options) BatchBytes() int64 {
	return buffer.BatchBytes(o.ChunkSize, o.WindowSize*extract.Features)
}

// Writer persists processing units to a KVStore.
type Writer struct {
	kv  chunkstore.KVStore
	log *slog.Logger
}

// NewWriter creates a writer on kv.
func NewWriter(kv chunkstore.KVStore) *Writer {
	return &Writer{
		kv:  kv,
		log: logging.Component("windows"),
	}
}

// ExtractAndPersist extracts every window of ev and persists the window and
// label stores of key. It returns the number of windows written, invalid
// windows included.
//
// Batches of at most ChunkSize windows are extracted and committed in order;
// batch k starts at offset k*ChunkSize in both stores. A batch that fails
// leaves the commit watermark of the previous batch. If a batch would exceed
// MemoryBudget the unit fails with ErrResourceExhausted before any store is
// created.
func (w *Writer) ExtractAndPersist(ctx context.Context, ev *events.Events, opts Options, key Key) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	if err := ev.Validate(); err != nil {
		return 0, err
	}
	if opts.MemoryBudget > 0 && opts.BatchBytes() > opts.MemoryBudget {
		return 0, fmt.Errorf("unit %s: batch of %d windows needs %d bytes, budget %d: %w",
			key, opts.ChunkSize, opts.BatchBytes(), opts.MemoryBudget, errors.ErrResourceExhausted)
	}
	if opts.VerifySorted {
		if err := events.CheckSorted(ev); err != nil {
			return 0, fmt.Errorf("unit %s: %w", key, err)
		}
	}

	n := extract.NumWindows(ev.Len(), opts.WindowSize)
	if int64(n) > math.MaxUint32 {
		return 0, errors.NewInvalidArgument("num_windows", n, "exceeds the valid-offset index range")
	}

	log := w.log.With("unit", key.String())
	began := time.Now()

	wa, la, err := w.createPair(ctx, key, n, opts)
	if err != nil {
		return 0, err
	}

	kernel := extract.Kernel{WindowSize: opts.WindowSize}
	pool := buffer.New(1, min(opts.ChunkSize, max(n, 1)), kernel.Stride())
	valid := roaring.New()

	for start := 0; start < n; start += opts.ChunkSize {
		count := min(opts.ChunkSize, n-start)
		batchBegan := time.Now()

		var st extract.Stats
		err := pool.With(ctx, count, func(b *buffer.Batch) error {
			var err error
			st, err = extract.Run(ctx, kernel, ev, start, count, b.Windows, b.Labels, opts.Workers)
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			if err := wa.WriteFloat32(ctx, start, b.Windows); err != nil {
				return err
			}
			if err := la.WriteInt32(ctx, start, b.Labels); err != nil {
				return err
			}
			if err := w.commit(ctx, wa, la, key, opts, start+count, false, 0); err != nil {
				return err
			}
			for i, label := range b.Labels {
				if label != extract.LabelInvalid {
					valid.Add(uint32(start + i))
				}
			}
			return nil
		})
		if err != nil {
			metrics.UnitErrors.WithLabelValues(key.String()).Inc()
			return 0, fmt.Errorf("unit %s batch at %d: %w", key, start, err)
		}

		metrics.BatchesCommitted.WithLabelValues(key.String()).Inc()
		metrics.BatchSeconds.Observe(time.Since(batchBegan).Seconds())
		metrics.WindowsWritten.WithLabelValues("valid").Add(float64(st.Valid))
		metrics.WindowsWritten.WithLabelValues("invalid").Add(float64(st.Invalid))
		log.Debug("batch committed",
			"start", start,
			"count", count,
			"valid", st.Valid,
			"duration", time.Since(batchBegan))
	}

	if err := w.finish(ctx, wa, la, key, opts, n, valid); err != nil {
		metrics.UnitErrors.WithLabelValues(key.String()).Inc()
		return 0, fmt.Errorf("unit %s: %w", key, err)
	}

	log.Info("unit written",
		"events", ev.Len(),
		"windows", n,
		"valid", valid.GetCardinality(),
		"batches", (n+opts.ChunkSize-1)/opts.ChunkSize,
		"duration", time.Since(began))
	return n, nil
}

func (w *Writer) createPair(ctx context.Context, key Key, n int, opts Options) (*chunkstore.Array, *chunkstore.Array, error) {
	wmeta := chunkstore.NewMetadata(chunkstore.Float32, []int{n, opts.WindowSize, extract.Features}, opts.StoreChunk, opts.Codec, 0)
	lmeta := chunkstore.NewMetadata(chunkstore.Int32, []int{n}, opts.StoreChunk, opts.Codec, float64(extract.LabelInvalid))

	wa, err := chunkstore.Create(ctx, w.kv, key.WindowsName(), wmeta)
	if err != nil {
		return nil, nil, w.createError(ctx, key, err)
	}
	la, err := chunkstore.Create(ctx, w.kv, key.LabelsName(), lmeta)
	if err != nil {
		return nil, nil, w.createError(ctx, key, err)
	}

	if err := w.commit(ctx, wa, la, key, opts, 0, false, 0); err != nil {
		return nil, nil, err
	}
	return wa, la, nil
}

// createError reports an existing complete pair as immutable.
func (w *Writer) createError(ctx context.Context, key Key, err error) error {
	if !errors.Is(err, errors.ErrAlreadyExists) {
		return fmt.Errorf("unit %s: %w", key, err)
	}
	if r, oerr := OpenPair(ctx, w.kv, key); oerr == nil && r.Complete() {
		return fmt.Errorf("unit %s: %w", key, errors.ErrStoreImmutable)
	}
	return fmt.Errorf("unit %s: %w", key, err)
}

// commit records the watermark in both arrays. The label store is updated
// first; readers take the minimum of both watermarks.
func (w *Writer) commit(ctx context.Context, wa, la *chunkstore.Array, key Key, opts Options, committed int, complete bool, numValid uint64) error {
	attrs := map[string]any{
		AttrCommitted:  committed,
		AttrComplete:   complete,
		AttrUnit:       key.String(),
		AttrWindowSize: opts.WindowSize,
		AttrChunkSize:  opts.ChunkSize,
		AttrFeatures:   FeatureNames,
	}
	if complete {
		attrs[AttrValid] = numValid
	}
	if err := la.SetAttrs(ctx, attrs); err != nil {
		return fmt.Errorf("commit labels at %d: %w", committed, err)
	}
	if err := wa.SetAttrs(ctx, attrs); err != nil {
		return fmt.Errorf("commit windows at %d: %w", committed, err)
	}
	return nil
}

// finish writes the valid-offset bitmap and marks both stores complete.
func (w *Writer) finish(ctx context.Context, wa, la *chunkstore.Array, key Key, opts Options, n int, valid *roaring.Bitmap) error {
	valid.RunOptimize()
	data, err := valid.ToBytes()
	if err != nil {
		return fmt.Errorf("encode valid offsets: %w", err)
	}
	if err := w.kv.Put(ctx, key.ValidName(), data); err != nil {
		return fmt.Errorf("write valid offsets: %w", err)
	}
	return w.commit(ctx, wa, la, key, opts, n, true, valid.GetCardinality())
}
