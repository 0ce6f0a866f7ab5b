package extract

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/events"
)

// minShard is the smallest number of offsets handed to one goroutine.
const minShard = 256

// Stats summarizes one Run.
type Stats struct {
	Valid   int
	Invalid int
}

// Run evaluates offsets [start, start+count) and writes window start+i into
// windows[i*Stride():] and its label into labels[i]. Shards of contiguous
// offsets run on at most workers goroutines (0 means GOMAXPROCS). Run returns
// after every shard finished; buffers must not be read before it returns.
func Run(ctx context.Context, k Kernel, ev *events.Events, start, count int, windows []float32, labels []int32, workers int) (Stats, error) {
	if k.WindowSize <= 0 {
		return Stats{}, errors.NewInvalidArgument("window_size", k.WindowSize, "must be positive")
	}
	total := NumWindows(ev.Len(), k.WindowSize)
	if start < 0 || count < 0 || start+count > total {
		return Stats{}, errors.NewInvalidArgument("range", fmt.Sprintf("[%d,%d)", start, start+count),
			fmt.Sprintf("outside [0,%d)", total))
	}
	stride := k.Stride()
	if len(windows) < count*stride || len(labels) < count {
		return Stats{}, errors.NewInvalidArgument("buffer", len(labels), fmt.Sprintf("need %d windows", count))
	}
	if count == 0 {
		return Stats{}, nil
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	shard := (count + workers - 1) / workers
	if shard < minShard {
		shard = minShard
	}
	shards := (count + shard - 1) / shard
	valid := make([]int, shards)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for s := 0; s < shards; s++ {
		lo := s * shard
		hi := min(lo+shard, count)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n := 0
			for i := lo; i < hi; i++ {
				label := k.Evaluate(ev, start+i, windows[i*stride:(i+1)*stride])
				labels[i] = label
				if label != LabelInvalid {
					n++
				}
			}
			valid[s] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	var st Stats
	for _, n := range valid {
		st.Valid += n
	}
	st.Invalid = count - st.Valid
	return st, nil
}

// All extracts every window of ev into freshly allocated buffers.
func All(ctx context.Context, k Kernel, ev *events.Events, workers int) ([]float32, []int32, error) {
	n := NumWindows(ev.Len(), k.WindowSize)
	windows := make([]float32, n*k.Stride())
	labels := make([]int32, n)
	if _, err := Run(ctx, k, ev, 0, n, windows, labels, workers); err != nil {
		return nil, nil, err
	}
	return windows, labels, nil
}
