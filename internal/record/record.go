// Package record defines the row type returned by the range query engine and
// the serialization sanitizer applied to every row before it crosses an
// external boundary.
package record

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// Field is a single named value of a record.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered field -> value mapping. Field order follows the
// column order of the store the record was read from.
type Record struct {
	Fields []Field
}

// New creates a record with capacity for n fields.
func New(n int) Record {
	return Record{Fields: make([]Field, 0, n)}
}

// FromPairs builds a record from alternating name/value arguments.
// It panics on an odd argument count or a non-string name.
func FromPairs(kv ...any) Record {
	if len(kv)%2 != 0 {
		panic("record: odd number of arguments")
	}
	r := New(len(kv) / 2)
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// Set sets the value of name, appending the field if it does not exist.
func (r *Record) Set(name string, value any) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			r.Fields[i].Value = value
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Value: value})
}

// Get returns the value of name.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.Fields)
}

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// Clone returns a copy that shares no field storage with r.
func (r Record) Clone() Record {
	out := Record{Fields: make([]Field, len(r.Fields))}
	copy(out.Fields, r.Fields)
	return out
}

// Map converts the record to an unordered map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON encodes the record as a JSON object with keys in field order.
// Non-finite floats make encoding fail; call Sanitize first.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
