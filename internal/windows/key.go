// Package windows implements the chunked store writer of the write path and
// the reader of the persisted window/label store pairs.
//
// Every processing unit (one month of AIS events) is persisted as a pair of
// chunked arrays:
//
//	windows_{year}_{mon}.zarr   float32 (num_windows, window_size, 5)
//	vids_{year}_{mon}.zarr      int32   (num_windows,)
//
// Window i and label i always describe the same start offset. Both arrays
// record a commit watermark in their attributes; a reader never exposes rows
// at or beyond the smaller of the two watermarks.
package windows

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed1916/marine-anomaly/internal/chunkstore"
	"github.com/mohammed1916/marine-anomaly/internal/errors"
)

var monthAbbr = [...]string{"", "jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// Key identifies a processing unit.
type Key struct {
	Year  int
	Month time.Month
}

// NewKey returns the key of year/month.
func NewKey(year int, month time.Month) (Key, error) {
	k := Key{Year: year, Month: month}
	return k, k.Validate()
}

// Validate checks the year and month.
func (k Key) Validate() error {
	if k.Year < 1 || k.Year > 9999 {
		return errors.NewInvalidArgument("year", k.Year, "must be in 1..9999")
	}
	if k.Month < time.January || k.Month > time.December {
		return errors.NewInvalidArgument("month", int(k.Month), "must be in 1..12")
	}
	return nil
}

// String returns "{year}_{mon}", e.g. 2018_jan.
func (k Key) String() string {
	return fmt.Sprintf("%d_%s", k.Year, monthAbbr[k.Month])
}

// WindowsName returns the window store name of the unit.
func (k Key) WindowsName() string {
	return "windows_" + k.String() + ".zarr"
}

// LabelsName returns the label store name of the unit.
func (k Key) LabelsName() string {
	return "vids_" + k.String() + ".zarr"
}

// ValidName returns the key of the valid-offset bitmap of the unit.
func (k Key) ValidName() string {
	return chunkstore.Join(k.LabelsName(), "valid.roaring")
}

// ParseKey parses "2018_jan", "2018-01", "2018-1" or a store name such as
// "windows_2018_jan.zarr".
func ParseKey(s string) (Key, error) {
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".zarr")
	s = strings.TrimPrefix(s, "windows_")
	s = strings.TrimPrefix(s, "vids_")

	sep := strings.IndexAny(s, "_-")
	if sep <= 0 {
		return Key{}, errors.NewInvalidArgument("unit", s, "expected {year}_{mon}")
	}
	year, err := strconv.Atoi(s[:sep])
	if err != nil {
		return Key{}, errors.NewInvalidArgument("year", s[:sep], "not a number")
	}

	rest := strings.ToLower(s[sep+1:])
	var month time.Month
	for i := 1; i < len(monthAbbr); i++ {
		if monthAbbr[i] == rest {
			month = time.Month(i)
		}
	}
	if month == 0 {
		m, err := strconv.Atoi(rest)
		if err != nil {
			return Key{}, errors.NewInvalidArgument("month", rest, "expected jan..dec or 1..12")
		}
		month = time.Month(m)
	}
	return NewKey(year, month)
}
