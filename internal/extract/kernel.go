package extract

import (
	"math"

	defaults "github.com/mohammed1916/marine-anomaly/config"
	"github.com/mohammed1916/marine-anomaly/internal/events"
)

// LabelInvalid is the sentinel label of an invalid window.
const LabelInvalid int32 = -1

// Features is the number of values per window step:
// lat, lon, speed, course, timestamp.
const Features = defaults.FeaturesPerStep

// Feature offsets within a step.
const (
	FeatureLat = iota
	FeatureLon
	FeatureSpeed
	FeatureCourse
	FeatureTimestamp
)

// NumWindows returns max(n-windowSize+1, 0).
func NumWindows(n, windowSize int) int {
	if windowSize <= 0 || n < windowSize {
		return 0
	}
	return n - windowSize + 1
}

// Kernel evaluates single offsets.
type Kernel struct {
	WindowSize int
}

// Stride returns the number of float32 values of one window.
func (k Kernel) Stride() int {
	return k.WindowSize * Features
}

// Evaluate computes the window starting at offset and returns its label.
// out must hold Stride() values; for a valid window it receives the clamped
// features, for an invalid window it is zeroed.
func (k Kernel) Evaluate(ev *events.Events, offset int, out []float32) int32 {
	ws := k.WindowSize
	vid := ev.VesselID[offset]
	if ev.VesselID[offset+ws-1] != vid {
		clear(out)
		return LabelInvalid
	}

	for j := 0; j < ws; j++ {
		r := offset + j
		if !finite(ev.Speed[r]) || !finite(ev.Course[r]) {
			clear(out)
			return LabelInvalid
		}
	}

	for j := 0; j < ws; j++ {
		r := offset + j
		step := out[j*Features : (j+1)*Features]
		step[FeatureLat] = float32(ev.Lat[r])
		step[FeatureLon] = float32(ev.Lon[r])
		step[FeatureSpeed] = float32(clamp(ev.Speed[r], 0, defaults.MaxSpeed))
		step[FeatureCourse] = float32(clamp(ev.Course[r], 0, defaults.MaxCourse))
		step[FeatureTimestamp] = float32(ev.Timestamp[r])
	}
	return vid
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
