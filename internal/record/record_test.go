package record

import (
	"math"
	"reflect"
	"testing"
)

func TestSanitizeReplacesNonFinite(t *testing.T) {
	r := FromPairs(
		"vessel_id", int64(7),
		"lat", 37.94,
		"speed", math.NaN(),
		"course", math.Inf(1),
		"heading", math.Inf(-1),
		"small", float32(math.NaN()),
		"name", "PIRAEUS",
		"ok", true,
		"missing", nil,
	)

	got := Sanitize(r)

	want := []Field{
		{"vessel_id", int64(7)},
		{"lat", 37.94},
		{"speed", nil},
		{"course", nil},
		{"heading", nil},
		{"small", nil},
		{"name", "PIRAEUS"},
		{"ok", true},
		{"missing", nil},
	}
	if !reflect.DeepEqual(got.Fields, want) {
		t.Errorf("Sanitize() = %v, want %v", got.Fields, want)
	}
}

func TestSanitizeDoesNotMutateInput(t *testing.T) {
	r := FromPairs("speed", math.NaN())

	_ = Sanitize(r)

	v, _ := r.Get("speed")
	if f, ok := v.(float64); !ok || !math.IsNaN(f) {
		t.Errorf("input was modified: speed=%v", v)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	r := FromPairs(
		"a", math.NaN(),
		"b", 1.5,
		"c", int32(-3),
		"d", math.Inf(1),
	)

	once := Sanitize(r)
	twice := Sanitize(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("not idempotent: %v vs %v", once, twice)
	}
}

func TestSanitizePreservesTypes(t *testing.T) {
	r := FromPairs("i32", int32(1), "i64", int64(2), "f32", float32(3), "u", uint8(4))

	got := Sanitize(r)
	for i, f := range got.Fields {
		if reflect.TypeOf(f.Value) != reflect.TypeOf(r.Fields[i].Value) {
			t.Errorf("field %s changed type %T -> %T", f.Name, r.Fields[i].Value, f.Value)
		}
	}
}

func TestMarshalJSONKeepsOrder(t *testing.T) {
	r := FromPairs("t", int64(1514764800), "vessel_id", int64(3), "lat", 37.5, "speed", nil)

	data, err := r.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	want := `{"t":1514764800,"vessel_id":3,"lat":37.5,"speed":null}`
	if string(data) != want {
		t.Errorf("MarshalJSON() = %s, want %s", data, want)
	}
}

func TestMarshalJSONRejectsNaN(t *testing.T) {
	r := FromPairs("speed", math.NaN())
	if _, err := r.MarshalJSON(); err == nil {
		t.Error("expected error encoding NaN")
	}

	if _, err := Sanitize(r).MarshalJSON(); err != nil {
		t.Errorf("sanitized record should encode: %v", err)
	}
}

func TestRecordSetGet(t *testing.T) {
	r := New(2)
	r.Set("a", 1)
	r.Set("b", 2)
	r.Set("a", 3)

	if r.Len() != 2 {
		t.Fatalf("expected 2 fields, got %d", r.Len())
	}
	if v, _ := r.Get("a"); v != 3 {
		t.Errorf("expected a=3, got %v", v)
	}
	if _, ok := r.Get("zz"); ok {
		t.Error("expected missing field")
	}
	if !reflect.DeepEqual(r.Names(), []string{"a", "b"}) {
		t.Errorf("unexpected names %v", r.Names())
	}
}
