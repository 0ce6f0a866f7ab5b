package events

import (
	"math"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
	pq "github.com/mohammed1916/marine-anomaly/internal/storage/parquet"
)

// LoadParquet reads events from a record store file. Only the six event
// columns are decoded, column chunk by column chunk.
func LoadParquet(path string) (*Events, error) {
	f, err := pq.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	_, tsCol, err := f.TimestampColumn()
	if err != nil {
		return nil, err
	}

	names := []string{"vessel_id", "lat", "lon", "speed", "course"}
	idx := make([]int, 0, 6)
	for _, name := range names {
		i, ok := f.ColumnIndex(name)
		if !ok {
			return nil, errors.NewMissingField(name)
		}
		idx = append(idx, i)
	}
	idx = append(idx, tsCol)

	n := int(f.NumRows())
	vessels := make([]string, 0, n)
	cols := make([][]float64, 5)
	for i := range cols {
		cols[i] = make([]float64, 0, n)
	}

	for rg := 0; rg < f.NumRowGroups(); rg++ {
		err := f.ScanColumn(rg, idx[0], func(values []parquet.Value) error {
			for _, v := range values {
				vessels = append(vessels, vesselKey(v))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for c := 1; c < len(idx); c++ {
			dst := &cols[c-1]
			err := f.ScanColumn(rg, idx[c], func(values []parquet.Value) error {
				for _, v := range values {
					x, ok := pq.Numeric(v)
					if !ok {
						x = math.NaN()
					}
					*dst = append(*dst, x)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	for c, name := range []string{"lat", "lon", "speed", "course", "timestamp"} {
		if len(cols[c]) != len(vessels) {
			return nil, errors.NewInvalidArgument("column", name, "value count differs from vessel_id")
		}
	}

	b := NewBuilder(len(vessels))
	for i, vessel := range vessels {
		b.Add(Raw{
			Vessel:    vessel,
			Lat:       cols[0][i],
			Lon:       cols[1][i],
			Speed:     cols[2][i],
			Course:    cols[3][i],
			Timestamp: cols[4][i],
		})
	}
	return b.Build(), nil
}

func vesselKey(v parquet.Value) string {
	switch v.Kind() {
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
