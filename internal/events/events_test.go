package events

import (
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
	pq "github.com/mohammed1916/marine-anomaly/internal/storage/parquet"
)

func TestCheckSorted(t *testing.T) {
	tests := []struct {
		name    string
		vids    []int32
		ts      []float64
		wantErr bool
	}{
		{"empty", nil, nil, false},
		{"single group", []int32{0, 0, 0}, []float64{1, 2, 2}, false},
		{"two groups", []int32{0, 0, 1, 1}, []float64{5, 6, 1, 2}, false},
		{"time regression", []int32{0, 0, 0}, []float64{1, 3, 2}, true},
		{"group reappears", []int32{0, 1, 0}, []float64{1, 1, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := fromColumns(tt.vids, tt.ts)
			err := CheckSorted(ev)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrUnsorted) {
					t.Errorf("expected ErrUnsorted, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	ev := fromColumns([]int32{0, 0}, []float64{1, 2})
	ev.Speed = ev.Speed[:1]

	if err := ev.Validate(); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := CheckSorted(ev); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected CheckSorted to reject ragged columns, got %v", err)
	}
}

func TestBuilderFactorizesInFirstSeenOrder(t *testing.T) {
	b := NewBuilder(0)
	b.Add(Raw{Vessel: "zeta", Timestamp: 3})
	b.Add(Raw{Vessel: "alpha", Timestamp: 9})
	b.Add(Raw{Vessel: "zeta", Timestamp: 1})
	b.Add(Raw{Vessel: "alpha", Timestamp: 2})

	if got := b.Vessels(); !reflect.DeepEqual(got, []string{"zeta", "alpha"}) {
		t.Errorf("Vessels() = %v", got)
	}

	ev := b.Build()
	if !reflect.DeepEqual(ev.VesselID, []int32{0, 0, 1, 1}) {
		t.Errorf("VesselID = %v", ev.VesselID)
	}
	if !reflect.DeepEqual(ev.Timestamp, []float64{1, 3, 2, 9}) {
		t.Errorf("Timestamp = %v", ev.Timestamp)
	}
	if err := CheckSorted(ev); err != nil {
		t.Errorf("built events should be sorted: %v", err)
	}
}

func TestBuilderStableOnEqualTimestamps(t *testing.T) {
	b := NewBuilder(0)
	b.Add(Raw{Vessel: "a", Timestamp: 1, Lat: 1})
	b.Add(Raw{Vessel: "a", Timestamp: 1, Lat: 2})
	b.Add(Raw{Vessel: "a", Timestamp: 1, Lat: 3})

	ev := b.Build()
	if !reflect.DeepEqual(ev.Lat, []float64{1, 2, 3}) {
		t.Errorf("equal timestamps reordered: %v", ev.Lat)
	}
}

func TestLoadCSV(t *testing.T) {
	data := `t,vessel_id,lon,lat,heading,speed,course
1514764800,abc,23.6,37.9,10,5.5,90
1514764700,abc,23.5,37.8,,4.0,
1514764900,xyz,23.7,38.0,,12,180
`
	ev, err := LoadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}

	if ev.Len() != 3 {
		t.Fatalf("expected 3 events, got %d", ev.Len())
	}
	if !reflect.DeepEqual(ev.VesselID, []int32{0, 0, 1}) {
		t.Errorf("VesselID = %v", ev.VesselID)
	}
	if ev.Timestamp[0] != 1514764700 {
		t.Errorf("expected sorted timestamps, got %v", ev.Timestamp)
	}
	if !math.IsNaN(ev.Course[0]) {
		t.Errorf("expected NaN course for empty cell, got %v", ev.Course[0])
	}
	if ev.Lat[2] != 38.0 || ev.Lon[2] != 23.7 {
		t.Errorf("unexpected position %v,%v", ev.Lat[2], ev.Lon[2])
	}
}

func TestLoadCSVTimestampAlias(t *testing.T) {
	data := "timestamp,vessel_id,lat,lon,speed,course\n10,1,0,0,0,0\n"
	ev, err := LoadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if ev.Timestamp[0] != 10 {
		t.Errorf("expected timestamp 10, got %v", ev.Timestamp[0])
	}
}

func TestLoadCSVMissingColumn(t *testing.T) {
	tests := []string{
		"t,vessel_id,lat,lon,speed\n",
		"vessel_id,lat,lon,speed,course\n",
		"",
	}
	for _, data := range tests {
		if _, err := LoadCSV(strings.NewReader(data)); !errors.Is(err, errors.ErrMissingField) {
			t.Errorf("LoadCSV(%q): expected ErrMissingField, got %v", data, err)
		}
	}
}

func TestLoadCSVBadNumber(t *testing.T) {
	data := "t,vessel_id,lat,lon,speed,course\n1,a,north,0,0,0\n"
	if _, err := LoadCSV(strings.NewReader(data)); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestLoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.parquet")

	opts := pq.DefaultOptions()
	opts.RowGroupSize = 2
	w, err := pq.NewEventWriter(path, opts)
	if err != nil {
		t.Fatalf("NewEventWriter: %v", err)
	}
	rows := []pq.EventRow{
		{T: 30, VesselID: 7, Lat: 1, Lon: 2, Speed: 3, Course: 4},
		{T: 10, VesselID: 9, Lat: 5, Lon: 6, Speed: 7, Course: 8},
		{T: 20, VesselID: 7, Lat: 9, Lon: 10, Speed: 11, Course: 12},
	}
	if err := w.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ev, err := LoadParquet(path)
	if err != nil {
		t.Fatalf("LoadParquet: %v", err)
	}

	if !reflect.DeepEqual(ev.VesselID, []int32{0, 0, 1}) {
		t.Errorf("VesselID = %v", ev.VesselID)
	}
	if !reflect.DeepEqual(ev.Timestamp, []float64{20, 30, 10}) {
		t.Errorf("Timestamp = %v", ev.Timestamp)
	}
	if !reflect.DeepEqual(ev.Speed, []float64{11, 3, 7}) {
		t.Errorf("Speed = %v", ev.Speed)
	}
}

func fromColumns(vids []int32, ts []float64) *Events {
	n := len(vids)
	return &Events{
		VesselID:  vids,
		Lat:       make([]float64, n),
		Lon:       make([]float64, n),
		Speed:     make([]float64, n),
		Course:    make([]float64, n),
		Timestamp: ts,
	}
}
