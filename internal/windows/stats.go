package windows

import (
	"context"
	"math/rand"
	"slices"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/mohammed1916/marine-anomaly/internal/extract"
)

// GapSummary describes the positive time gaps between consecutive steps of
// sampled windows.
type GapSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
}

// SampleGaps draws up to maxWindows distinct valid windows of r and returns
// the differences between consecutive timestamps of each.
func SampleGaps(ctx context.Context, r *Reader, maxWindows int, rng *rand.Rand) ([]float64, error) {
	valid, err := r.ValidOffsets(ctx)
	if err != nil {
		return nil, err
	}
	n := int(valid.GetCardinality())
	if n == 0 || maxWindows <= 0 {
		return nil, nil
	}

	ranks := sampleRanks(rng, n, maxWindows)

	ws := r.WindowSize()
	gaps := make([]float64, 0, len(ranks)*max(ws-1, 0))
	for _, rank := range ranks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		off, err := valid.Select(uint32(rank))
		if err != nil {
			return nil, err
		}
		w, err := r.Window(ctx, int(off))
		if err != nil {
			return nil, err
		}
		for j := 1; j < ws; j++ {
			prev := w[(j-1)*extract.Features+extract.FeatureTimestamp]
			cur := w[j*extract.Features+extract.FeatureTimestamp]
			gaps = append(gaps, float64(cur-prev))
		}
	}
	return gaps, nil
}

// SummarizeGaps summarizes the positive entries of gaps. Quantiles carry a
// relative error of 1%.
func SummarizeGaps(gaps []float64) (GapSummary, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return GapSummary{}, err
	}

	var s GapSummary
	var sum float64
	for _, g := range gaps {
		if g <= 0 {
			continue
		}
		if err := sketch.Add(g); err != nil {
			return GapSummary{}, err
		}
		sum += g
		s.Count++
	}
	if s.Count == 0 {
		return s, nil
	}

	s.Mean = sum / float64(s.Count)
	if s.Median, err = sketch.GetValueAtQuantile(0.5); err != nil {
		return GapSummary{}, err
	}
	if s.P90, err = sketch.GetValueAtQuantile(0.9); err != nil {
		return GapSummary{}, err
	}
	return s, nil
}

// sampleRanks returns min(k, n) distinct values of [0, n) in ascending order.
func sampleRanks(rng *rand.Rand, n, k int) []int {
	if k >= n {
		ranks := make([]int, n)
		for i := range ranks {
			ranks[i] = i
		}
		return ranks
	}
	// Floyd's algorithm
	picked := make(map[int]struct{}, k)
	for j := n - k; j < n; j++ {
		v := rng.Intn(j + 1)
		if _, ok := picked[v]; ok {
			v = j
		}
		picked[v] = struct{}{}
	}
	ranks := make([]int, 0, k)
	for v := range picked {
		ranks = append(ranks, v)
	}
	slices.Sort(ranks)
	return ranks
}
