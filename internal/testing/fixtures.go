package testing

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/mohammed1916/marine-anomaly/internal/events"
	pq "github.com/mohammed1916/marine-anomaly/internal/storage/parquet"
)

// Track returns n events of one vessel, one per second from t0, all finite
// and in range.
func Track(vid int32, n int, t0 float64) *events.Events {
	ev := &events.Events{}
	AppendTrack(ev, vid, n, t0)
	return ev
}

// AppendTrack appends n events of vessel vid to ev.
func AppendTrack(ev *events.Events, vid int32, n int, t0 float64) {
	for i := 0; i < n; i++ {
		ev.VesselID = append(ev.VesselID, vid)
		ev.Lat = append(ev.Lat, 37.9+float64(i)*0.001)
		ev.Lon = append(ev.Lon, 23.6+float64(i)*0.001)
		ev.Speed = append(ev.Speed, 12)
		ev.Course = append(ev.Course, 180)
		ev.Timestamp = append(ev.Timestamp, t0+float64(i))
	}
}

// RandomEvents returns n sorted events with random vessel boundaries, random
// gaps and occasional non-finite or out-of-range speed and course values.
func RandomEvents(seed int64, n int) *events.Events {
	rng := rand.New(rand.NewSource(seed))
	ev := &events.Events{}
	var vid int32
	ts := 0.0
	for i := 0; i < n; i++ {
		if i > 0 && rng.Intn(50) == 0 {
			vid++
			ts = 0
		}
		ts += 1 + rng.Float64()*30
		speed := rng.Float64()*130 - 10
		course := rng.Float64()*400 - 20
		switch rng.Intn(250) {
		case 0:
			speed = math.NaN()
		case 1:
			course = math.Inf(-1)
		}
		ev.VesselID = append(ev.VesselID, vid)
		ev.Lat = append(ev.Lat, 37+rng.Float64())
		ev.Lon = append(ev.Lon, 23+rng.Float64())
		ev.Speed = append(ev.Speed, speed)
		ev.Course = append(ev.Course, course)
		ev.Timestamp = append(ev.Timestamp, ts)
	}
	return ev
}

// EventRows returns n record store rows with timestamps t0, t0+step, ...
// cycling through vessels vessel ids 0..vessels-1.
func EventRows(n int, t0, step int64, vessels int) []pq.EventRow {
	rows := make([]pq.EventRow, n)
	for i := range rows {
		rows[i] = pq.EventRow{
			T:        t0 + int64(i)*step,
			VesselID: int64(i % vessels),
			Lat:      37.90 + float64(i%10)*0.01,
			Lon:      23.60 + float64(i%7)*0.01,
			Speed:    float64(i % 25),
			Course:   float64(i * 15 % 360),
		}
	}
	return rows
}

// WriteEventFile writes rows to dir/name with one row group per groupSize
// rows and returns the file path.
func WriteEventFile(t *testing.T, dir, name string, groupSize int, rows []pq.EventRow) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	opts := pq.DefaultOptions()
	opts.RowGroupSize = groupSize
	w, err := pq.NewEventWriter(path, opts)
	if err != nil {
		t.Fatalf("NewEventWriter: %v", err)
	}
	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}
