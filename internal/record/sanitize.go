package record

import "math"

// Sanitize returns a copy of r in which every non-finite float (NaN, +Inf,
// -Inf) is replaced by nil. All other values keep their type and value, and
// field order is preserved. r itself is not modified.
//
// Sanitize is idempotent: Sanitize(Sanitize(r)) equals Sanitize(r).
func Sanitize(r Record) Record {
	out := Record{Fields: make([]Field, len(r.Fields))}
	for i, f := range r.Fields {
		out.Fields[i] = Field{Name: f.Name, Value: SanitizeValue(f.Value)}
	}
	return out
}

// SanitizeAll returns sanitized copies of rs.
func SanitizeAll(rs []Record) []Record {
	out := make([]Record, len(rs))
	for i := range rs {
		out[i] = Sanitize(rs[i])
	}
	return out
}

// SanitizeValue maps a non-finite float to nil and returns v otherwise.
func SanitizeValue(v any) any {
	switch x := v.(type) {
	case float64:
		if !IsFinite(x) {
			return nil
		}
	case float32:
		if !IsFinite(float64(x)) {
			return nil
		}
	}
	return v
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
