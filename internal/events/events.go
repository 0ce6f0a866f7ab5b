// Package events holds the sorted event source of the write path: dense
// parallel arrays of AIS position reports for one processing unit, grouped by
// vessel and non-decreasing in time inside each group.
package events

import (
	"fmt"
	"sort"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
)

// Events is a processing unit's events as parallel columns.
type Events struct {
	VesselID  []int32
	Lat       []float64
	Lon       []float64
	Speed     []float64
	Course    []float64
	Timestamp []float64
}

// Len returns the number of events.
func (e *Events) Len() int {
	return len(e.VesselID)
}

// Validate checks that every column has the same length.
func (e *Events) Validate() error {
	n := len(e.VesselID)
	cols := []struct {
		name string
		n    int
	}{
		{"lat", len(e.Lat)},
		{"lon", len(e.Lon)},
		{"speed", len(e.Speed)},
		{"course", len(e.Course)},
		{"timestamp", len(e.Timestamp)},
	}
	for _, c := range cols {
		if c.n != n {
			return errors.NewInvalidArgument(c.name, c.n, fmt.Sprintf("column length differs from vessel_id (%d)", n))
		}
	}
	return nil
}

// CheckSorted verifies that rows are grouped by vessel with non-decreasing
// timestamps inside each group. A vessel id that reappears after another
// group is a violation. The error wraps ErrUnsorted and names the first
// offending offset.
func CheckSorted(e *Events) error {
	if err := e.Validate(); err != nil {
		return err
	}

	seen := make(map[int32]struct{})
	for i := 0; i < e.Len(); i++ {
		vid := e.VesselID[i]
		if i > 0 && vid == e.VesselID[i-1] {
			if e.Timestamp[i] < e.Timestamp[i-1] {
				return fmt.Errorf("offset %d: vessel %d timestamp %v < %v: %w",
					i, vid, e.Timestamp[i], e.Timestamp[i-1], errors.ErrUnsorted)
			}
			continue
		}
		if _, dup := seen[vid]; dup {
			return fmt.Errorf("offset %d: vessel %d reappears after another group: %w",
				i, vid, errors.ErrUnsorted)
		}
		seen[vid] = struct{}{}
	}
	return nil
}

// Raw is a single event keyed by an arbitrary vessel identity.
type Raw struct {
	Vessel    string
	Lat       float64
	Lon       float64
	Speed     float64
	Course    float64
	Timestamp float64
}

// Builder accumulates raw events and produces sorted Events.
type Builder struct {
	codes map[string]int32
	rows  []row
}

type row struct {
	vid int32
	Raw
}

// NewBuilder creates a builder with capacity for n events.
func NewBuilder(n int) *Builder {
	return &Builder{
		codes: make(map[string]int32),
		rows:  make([]row, 0, n),
	}
}

// Add appends one event. Vessel identities are assigned dense codes in
// first-seen order.
func (b *Builder) Add(r Raw) {
	code, ok := b.codes[r.Vessel]
	if !ok {
		code = int32(len(b.codes))
		b.codes[r.Vessel] = code
	}
	b.rows = append(b.rows, row{vid: code, Raw: r})
}

// Len returns the number of events added.
func (b *Builder) Len() int {
	return len(b.rows)
}

// Vessels returns the identity of every dense code, indexed by code.
func (b *Builder) Vessels() []string {
	out := make([]string, len(b.codes))
	for k, c := range b.codes {
		out[c] = k
	}
	return out
}

// Build stable-sorts the accumulated events by (vessel code, timestamp) and
// returns them as columns.
func (b *Builder) Build() *Events {
	sort.SliceStable(b.rows, func(i, j int) bool {
		if b.rows[i].vid != b.rows[j].vid {
			return b.rows[i].vid < b.rows[j].vid
		}
		return b.rows[i].Timestamp < b.rows[j].Timestamp
	})

	n := len(b.rows)
	ev := &Events{
		VesselID:  make([]int32, n),
		Lat:       make([]float64, n),
		Lon:       make([]float64, n),
		Speed:     make([]float64, n),
		Course:    make([]float64, n),
		Timestamp: make([]float64, n),
	}
	for i, r := range b.rows {
		ev.VesselID[i] = r.vid
		ev.Lat[i] = r.Lat
		ev.Lon[i] = r.Lon
		ev.Speed[i] = r.Speed
		ev.Course[i] = r.Course
		ev.Timestamp[i] = r.Timestamp
	}
	return ev
}
