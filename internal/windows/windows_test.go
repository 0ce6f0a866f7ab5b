package windows

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mohammed1916/marine-anomaly/internal/chunkstore"
	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/events"
	"github.com/mohammed1916/marine-anomaly/internal/extract"
	testutil "github.com/mohammed1916/marine-anomaly/internal/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var jan2018 = Key{Year: 2018, Month: time.January}

func testOptions(ws, chunkSize, storeChunk int) Options {
	return Options{
		WindowSize: ws,
		ChunkSize:  chunkSize,
		StoreChunk: storeChunk,
		Workers:    2,
	}
}

// failingStore fails every Put of a key containing failKey.
type failingStore struct {
	chunkstore.KVStore
	failKey string
	failed  atomic.Int64
}

func (s *failingStore) Put(ctx context.Context, key string, data []byte) error {
	if strings.Contains(key, s.failKey) {
		s.failed.Add(1)
		return fmt.Errorf("put %s: injected failure", key)
	}
	return s.KVStore.Put(ctx, key, data)
}

func TestExtractAndPersistMatchesExtractor(t *testing.T) {
	codecs := []string{"none", "zstd", "lz4"}
	ev := testutil.RandomEvents(5, 700)

	for _, name := range codecs {
		t.Run(name, func(t *testing.T) {
			codec, err := chunkstore.NewCodec(name, 3)
			if err != nil {
				t.Fatalf("NewCodec: %v", err)
			}
			opts := testOptions(8, 100, 64)
			opts.Codec = codec
			opts.VerifySorted = true

			kv := chunkstore.NewMemoryStore()
			n, err := NewWriter(kv).ExtractAndPersist(context.Background(), ev, opts, jan2018)
			if err != nil {
				t.Fatalf("ExtractAndPersist: %v", err)
			}

			wantW, wantL, err := extract.All(context.Background(), extract.Kernel{WindowSize: 8}, ev, 1)
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if n != len(wantL) {
				t.Fatalf("wrote %d windows, want %d", n, len(wantL))
			}

			r, err := OpenPair(context.Background(), kv, jan2018)
			if err != nil {
				t.Fatalf("OpenPair: %v", err)
			}
			if !r.Complete() || r.NumWindows() != n || r.TotalWindows() != n {
				t.Fatalf("complete=%v committed=%d total=%d", r.Complete(), r.NumWindows(), r.TotalWindows())
			}
			gotW, err := r.Windows(context.Background(), 0, n)
			if err != nil {
				t.Fatalf("Windows: %v", err)
			}
			gotL, err := r.Labels(context.Background(), 0, n)
			if err != nil {
				t.Fatalf("Labels: %v", err)
			}
			if !reflect.DeepEqual(gotL, wantL) {
				t.Error("persisted labels differ from extractor output")
			}
			if !reflect.DeepEqual(gotW, wantW) {
				t.Error("persisted windows differ from extractor output")
			}
		})
	}
}

func TestExtractAndPersistSmallTrack(t *testing.T) {
	ev := testutil.Track(0, 4, 100)
	kv := chunkstore.NewMemoryStore()

	n, err := NewWriter(kv).ExtractAndPersist(context.Background(), ev, testOptions(3, 10, 1024), jan2018)
	if err != nil {
		t.Fatalf("ExtractAndPersist: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 windows, got %d", n)
	}

	r, err := OpenPair(context.Background(), kv, jan2018)
	if err != nil {
		t.Fatalf("OpenPair: %v", err)
	}
	labels, err := r.Labels(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if !reflect.DeepEqual(labels, []int32{0, 0}) {
		t.Errorf("labels = %v, want [0 0]", labels)
	}

	w, err := r.Window(context.Background(), 1)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(w) != 3*extract.Features {
		t.Fatalf("window has %d values", len(w))
	}
	if w[extract.FeatureTimestamp] != 101 {
		t.Errorf("window 1 starts at %v, want 101", w[extract.FeatureTimestamp])
	}
}

func TestExtractAndPersistStoreLayout(t *testing.T) {
	kv := chunkstore.NewMemoryStore()
	ev := testutil.Track(1, 12, 0)

	if _, err := NewWriter(kv).ExtractAndPersist(context.Background(), ev, testOptions(3, 4, 4), jan2018); err != nil {
		t.Fatalf("ExtractAndPersist: %v", err)
	}

	keys, err := kv.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{
		"vids_2018_jan.zarr/.zarray",
		"vids_2018_jan.zarr/.zattrs",
		"vids_2018_jan.zarr/0",
		"vids_2018_jan.zarr/1",
		"vids_2018_jan.zarr/2",
		"vids_2018_jan.zarr/valid.roaring",
		"windows_2018_jan.zarr/.zarray",
		"windows_2018_jan.zarr/.zattrs",
		"windows_2018_jan.zarr/0.0.0",
		"windows_2018_jan.zarr/1.0.0",
		"windows_2018_jan.zarr/2.0.0",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v\nwant %v", keys, want)
	}
}

func TestBatchesStraddleStoreChunks(t *testing.T) {
	ev := testutil.RandomEvents(11, 400)
	kv := chunkstore.NewMemoryStore()

	// 37 is not a multiple of 16, so most batches share a chunk with the
	// previous one.
	n, err := NewWriter(kv).ExtractAndPersist(context.Background(), ev, testOptions(5, 37, 16), jan2018)
	if err != nil {
		t.Fatalf("ExtractAndPersist: %v", err)
	}

	_, wantL, err := extract.All(context.Background(), extract.Kernel{WindowSize: 5}, ev, 1)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	r, err := OpenPair(context.Background(), kv, jan2018)
	if err != nil {
		t.Fatalf("OpenPair: %v", err)
	}
	got, err := r.Labels(context.Background(), 0, n)
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if !reflect.DeepEqual(got, wantL) {
		t.Error("labels differ after straddling batches")
	}
}

func TestFailedBatchKeepsWatermark(t *testing.T) {
	ev := testutil.Track(3, 20, 0)
	kv := &failingStore{
		KVStore: chunkstore.NewMemoryStore(),
		// chunk 2 holds windows [8, 12): the third batch of four
		failKey: "windows_2018_jan.zarr/2.0.0",
	}

	_, err := NewWriter(kv).ExtractAndPersist(context.Background(), ev, testOptions(3, 4, 4), jan2018)
	if err == nil {
		t.Fatal("expected failure")
	}
	if kv.failed.Load() == 0 {
		t.Fatal("failure was not injected")
	}

	r, err := OpenPair(context.Background(), kv, jan2018)
	if err != nil {
		t.Fatalf("OpenPair: %v", err)
	}
	if r.Complete() {
		t.Error("failed unit must not be complete")
	}
	if r.NumWindows() != 8 {
		t.Errorf("committed = %d, want 8", r.NumWindows())
	}
	if r.TotalWindows() != 18 {
		t.Errorf("total = %d, want 18", r.TotalWindows())
	}
	if _, err := r.Labels(context.Background(), 6, 4); !errors.IsNotFound(err) {
		t.Errorf("reading past the watermark: expected not found, got %v", err)
	}
	labels, err := r.Labels(context.Background(), 0, 8)
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	for i, l := range labels {
		if l != 3 {
			t.Errorf("label %d = %d, want 3", i, l)
		}
	}

	valid, err := r.ValidOffsets(context.Background())
	if err != nil {
		t.Fatalf("ValidOffsets: %v", err)
	}
	if valid.GetCardinality() != 8 {
		t.Errorf("expected 8 valid offsets from the label scan, got %d", valid.GetCardinality())
	}
}

func TestMemoryBudgetCreatesNoStore(t *testing.T) {
	kv := chunkstore.NewMemoryStore()
	opts := testOptions(128, 1024, 1024)
	opts.MemoryBudget = opts.BatchBytes() - 1

	_, err := NewWriter(kv).ExtractAndPersist(context.Background(), testutil.Track(0, 2000, 0), opts, jan2018)
	if !errors.Is(err, errors.ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}
	if kv.Puts() != 0 {
		t.Errorf("expected no writes, got %d", kv.Puts())
	}

	opts.MemoryBudget = opts.BatchBytes()
	if _, err := NewWriter(kv).ExtractAndPersist(context.Background(), testutil.Track(0, 2000, 0), opts, jan2018); err != nil {
		t.Errorf("batch at the budget should pass: %v", err)
	}
}

func TestUnsortedInputRejected(t *testing.T) {
	ev := testutil.Track(0, 10, 0)
	ev.Timestamp[4], ev.Timestamp[5] = ev.Timestamp[5], ev.Timestamp[4]

	kv := chunkstore.NewMemoryStore()
	opts := testOptions(3, 10, 10)
	opts.VerifySorted = true
	if _, err := NewWriter(kv).ExtractAndPersist(context.Background(), ev, opts, jan2018); !errors.Is(err, errors.ErrUnsorted) {
		t.Errorf("expected ErrUnsorted, got %v", err)
	}
	if kv.Puts() != 0 {
		t.Errorf("expected no writes, got %d", kv.Puts())
	}
}

func TestExistingStore(t *testing.T) {
	kv := chunkstore.NewMemoryStore()
	w := NewWriter(kv)
	ev := testutil.Track(0, 10, 0)
	opts := testOptions(3, 4, 4)

	if _, err := w.ExtractAndPersist(context.Background(), ev, opts, jan2018); err != nil {
		t.Fatalf("ExtractAndPersist: %v", err)
	}
	if _, err := w.ExtractAndPersist(context.Background(), ev, opts, jan2018); !errors.Is(err, errors.ErrStoreImmutable) {
		t.Errorf("rewriting a complete unit: expected ErrStoreImmutable, got %v", err)
	}

	failing := &failingStore{KVStore: chunkstore.NewMemoryStore(), failKey: "1.0.0"}
	if _, err := NewWriter(failing).ExtractAndPersist(context.Background(), ev, opts, jan2018); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := NewWriter(failing).ExtractAndPersist(context.Background(), ev, opts, jan2018); !errors.Is(err, errors.ErrAlreadyExists) {
		t.Errorf("rewriting an incomplete unit: expected ErrAlreadyExists, got %v", err)
	}
}

func TestFewerEventsThanWindowSize(t *testing.T) {
	kv := chunkstore.NewMemoryStore()
	n, err := NewWriter(kv).ExtractAndPersist(context.Background(), testutil.Track(0, 2, 0), testOptions(3, 4, 4), jan2018)
	if err != nil {
		t.Fatalf("ExtractAndPersist: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 windows, got %d", n)
	}
	r, err := OpenPair(context.Background(), kv, jan2018)
	if err != nil {
		t.Fatalf("OpenPair: %v", err)
	}
	if !r.Complete() || r.NumWindows() != 0 {
		t.Errorf("complete=%v committed=%d", r.Complete(), r.NumWindows())
	}
}

func TestOpenPairShapeMismatch(t *testing.T) {
	ctx := context.Background()
	kv := chunkstore.NewMemoryStore()

	wmeta := chunkstore.NewMetadata(chunkstore.Float32, []int{10, 3, extract.Features}, 4, nil, 0)
	lmeta := chunkstore.NewMetadata(chunkstore.Int32, []int{9}, 4, nil, -1)
	if _, err := chunkstore.Create(ctx, kv, jan2018.WindowsName(), wmeta); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := chunkstore.Create(ctx, kv, jan2018.LabelsName(), lmeta); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := OpenPair(ctx, kv, jan2018); !errors.Is(err, errors.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := OpenPair(ctx, kv, Key{Year: 2019, Month: time.March}); !errors.IsNotFound(err) {
		t.Errorf("missing unit: expected not found, got %v", err)
	}
}

func TestValidOffsetsBitmapMatchesLabels(t *testing.T) {
	ev := testutil.RandomEvents(9, 1500)
	kv := chunkstore.NewMemoryStore()
	n, err := NewWriter(kv).ExtractAndPersist(context.Background(), ev, testOptions(10, 256, 128), jan2018)
	if err != nil {
		t.Fatalf("ExtractAndPersist: %v", err)
	}

	r, err := OpenPair(context.Background(), kv, jan2018)
	if err != nil {
		t.Fatalf("OpenPair: %v", err)
	}
	bm, err := r.ValidOffsets(context.Background())
	if err != nil {
		t.Fatalf("ValidOffsets: %v", err)
	}
	labels, err := r.Labels(context.Background(), 0, n)
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}

	valid := 0
	for i, l := range labels {
		in := bm.Contains(uint32(i))
		if (l != extract.LabelInvalid) != in {
			t.Fatalf("offset %d: label %d, in bitmap %v", i, l, in)
		}
		if in {
			valid++
		}
	}
	if valid == 0 || valid == n {
		t.Errorf("fixture should mix valid and invalid windows, got %d/%d", valid, n)
	}
}

func TestSampleGaps(t *testing.T) {
	ev := testutil.Track(0, 50, 1000)
	testutil.AppendTrack(ev, 1, 50, 5000)
	kv := chunkstore.NewMemoryStore()
	if _, err := NewWriter(kv).ExtractAndPersist(context.Background(), ev, testOptions(4, 100, 32), jan2018); err != nil {
		t.Fatalf("ExtractAndPersist: %v", err)
	}
	r, err := OpenPair(context.Background(), kv, jan2018)
	if err != nil {
		t.Fatalf("OpenPair: %v", err)
	}

	gaps, err := SampleGaps(context.Background(), r, 10, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("SampleGaps: %v", err)
	}
	if len(gaps) != 10*3 {
		t.Fatalf("expected 30 gaps, got %d", len(gaps))
	}
	for _, g := range gaps {
		if g != 1 {
			t.Fatalf("gap %v sampled from an invalid window", g)
		}
	}

	all, err := SampleGaps(context.Background(), r, 10_000, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("SampleGaps: %v", err)
	}
	// 47 valid windows per vessel
	if len(all) != 2*47*3 {
		t.Errorf("expected every valid window, got %d gaps", len(all))
	}
}

func TestSummarizeGaps(t *testing.T) {
	gaps := []float64{0, -5, 10, 10, 10, 10, 10, 10, 10, 10, 10, 100}
	s, err := SummarizeGaps(gaps)
	if err != nil {
		t.Fatalf("SummarizeGaps: %v", err)
	}
	if s.Count != 10 {
		t.Errorf("count = %d, want 10", s.Count)
	}
	if math.Abs(s.Mean-19) > 1e-9 {
		t.Errorf("mean = %v, want 19", s.Mean)
	}
	if math.Abs(s.Median-10) > 0.1 {
		t.Errorf("median = %v, want ~10", s.Median)
	}
	if math.Abs(s.P90-10) > 0.1 {
		t.Errorf("p90 = %v, want ~10", s.P90)
	}

	empty, err := SummarizeGaps([]float64{0, -1})
	if err != nil {
		t.Fatalf("SummarizeGaps: %v", err)
	}
	if empty.Count != 0 || empty.Mean != 0 {
		t.Errorf("expected empty summary, got %+v", empty)
	}
}

func TestSampleRanksDistinct(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ranks := sampleRanks(rng, 1000, 100)
	if len(ranks) != 100 {
		t.Fatalf("got %d ranks", len(ranks))
	}
	for i := 1; i < len(ranks); i++ {
		if ranks[i] <= ranks[i-1] {
			t.Fatalf("ranks not distinct and ascending: %v", ranks[i-1:i+1])
		}
	}
	if ranks[len(ranks)-1] >= 1000 {
		t.Errorf("rank out of range: %d", ranks[len(ranks)-1])
	}
}

func TestRunUnits(t *testing.T) {
	kv := chunkstore.NewMemoryStore()
	feb := Key{Year: 2018, Month: time.February}
	mar := Key{Year: 2018, Month: time.March}

	units := []Unit{
		{Key: jan2018, Load: func(context.Context) (*events.Events, error) { return testutil.Track(0, 30, 0), nil }},
		{Key: feb, Load: func(context.Context) (*events.Events, error) { return nil, errors.NewNotFound("file", "2018-02.parquet") }},
		{Key: mar, Load: func(context.Context) (*events.Events, error) { return testutil.Track(1, 10, 0), nil }},
	}

	results, err := NewWriter(kv).RunUnits(context.Background(), units, testOptions(3, 8, 8), 2)
	if err == nil {
		t.Fatal("expected the failing unit to be reported")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("expected joined error to wrap ErrNotFound, got %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Windows != 28 {
		t.Errorf("jan: %+v", results[0])
	}
	if results[1].Err == nil {
		t.Error("feb should fail")
	}
	if results[2].Err != nil || results[2].Windows != 8 {
		t.Errorf("mar: %+v", results[2])
	}

	for _, k := range []Key{jan2018, mar} {
		r, err := OpenPair(context.Background(), kv, k)
		if err != nil {
			t.Fatalf("OpenPair %s: %v", k, err)
		}
		if !r.Complete() {
			t.Errorf("%s not complete", k)
		}
	}
}

func TestRunUnitsRejectsDuplicates(t *testing.T) {
	load := func(context.Context) (*events.Events, error) { return testutil.Track(0, 5, 0), nil }
	units := []Unit{{Key: jan2018, Load: load}, {Key: jan2018, Load: load}}
	if _, err := NewWriter(chunkstore.NewMemoryStore()).RunUnits(context.Background(), units, testOptions(3, 8, 8), 2); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestKeyNames(t *testing.T) {
	k, err := NewKey(2018, time.January)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	if k.WindowsName() != "windows_2018_jan.zarr" {
		t.Errorf("WindowsName = %s", k.WindowsName())
	}
	if k.LabelsName() != "vids_2018_jan.zarr" {
		t.Errorf("LabelsName = %s", k.LabelsName())
	}
	if _, err := NewKey(2018, 13); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("month 13: expected ErrInvalidArgument, got %v", err)
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in      string
		want    Key
		wantErr bool
	}{
		{"2018_jan", Key{2018, time.January}, false},
		{"2018-01", Key{2018, time.January}, false},
		{"2019-12", Key{2019, time.December}, false},
		{"2018_SEP", Key{2018, time.September}, false},
		{"windows_2020_may.zarr", Key{2020, time.May}, false},
		{"vids_2020_may.zarr/", Key{2020, time.May}, false},
		{"2018", Key{}, true},
		{"2018_foo", Key{}, true},
		{"abcd_jan", Key{}, true},
		{"2018-13", Key{}, true},
	}
	for _, tt := range tests {
		got, err := ParseKey(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseKey(%q) = %v, expected error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseKey(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKey(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
