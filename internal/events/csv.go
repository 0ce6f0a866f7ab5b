package events

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
)

var requiredColumns = []string{"vessel_id", "lat", "lon", "speed", "course"}

// LoadCSV reads a raw AIS CSV with a header row. The timestamp column may be
// named t or timestamp; unknown columns are ignored and empty numeric cells
// read as NaN. The result is factorized and sorted.
func LoadCSV(r io.Reader) (*Events, error) {
	b, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// ReadCSV reads a raw AIS CSV into a builder.
func ReadCSV(r io.Reader) (*Builder, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.NewMissingField("header")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}

	cols := make(map[string]int, 6)
	for _, name := range requiredColumns {
		i, ok := idx[name]
		if !ok {
			return nil, errors.NewMissingField(name)
		}
		cols[name] = i
	}
	if i, ok := idx["t"]; ok {
		cols["timestamp"] = i
	} else if i, ok := idx["timestamp"]; ok {
		cols["timestamp"] = i
	} else {
		return nil, errors.NewMissingField("timestamp (t|timestamp)")
	}

	b := NewBuilder(1024)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var raw Raw
		raw.Vessel = strings.TrimSpace(rec[cols["vessel_id"]])
		fields := []struct {
			name string
			dst  *float64
		}{
			{"lat", &raw.Lat},
			{"lon", &raw.Lon},
			{"speed", &raw.Speed},
			{"course", &raw.Course},
			{"timestamp", &raw.Timestamp},
		}
		for _, f := range fields {
			v, err := parseFloat(rec[cols[f.name]])
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, f.name, err)
			}
			*f.dst = v
		}
		b.Add(raw)
	}
	return b, nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.NewInvalidArgument("number", s, "not a float")
	}
	return v, nil
}
