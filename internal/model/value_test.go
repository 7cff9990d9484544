package model

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestParseJSONValue_PreservesKeyOrder(t *testing.T) {
	t.Parallel()

	v, err := ParseJSONValue([]byte(`{"z":1,"a":{"y":true,"b":null},"m":[1,2.5,"x"]}`))
	if err != nil {
		t.Fatalf("ParseJSONValue: %v", err)
	}
	m, ok := v.AsMap()
	if !ok {
		t.Fatalf("kind = %s, want map", v.Kind())
	}
	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Fatalf("keys = %v, want [z a m]", keys)
	}

	z, _ := m.Get("z")
	if n, ok := z.AsInt(); !ok || n != 1 {
		t.Fatalf("z = %v, want integral 1", z.Text())
	}

	nested, _ := m.Get("a")
	inner, ok := nested.AsMap()
	if !ok || inner.Keys()[0] != "y" {
		t.Fatalf("nested keys = %v, want y first", inner.Keys())
	}

	arr, _ := m.Get("m")
	items, ok := arr.AsArray()
	if !ok || len(items) != 3 {
		t.Fatalf("array = %v", arr.Text())
	}
	if _, ok := items[1].AsInt(); ok {
		t.Fatal("2.5 should not be integral")
	}
}

func TestParseJSONValue_RejectsTrailingData(t *testing.T) {
	t.Parallel()

	if _, err := ParseJSONValue([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected error for trailing document")
	}
	if _, err := ParseJSONValue([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestFields_MarshalJSONKeepsOrder(t *testing.T) {
	t.Parallel()

	f := NewFields("b", Int(2), "a", String("x"), "c", Array(Bool(true), Null()))
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(b), `{"b":2,"a":"x","c":[true,null]}`; got != want {
		t.Fatalf("json = %s, want %s", got, want)
	}
}

func TestFields_SetIfAbsent(t *testing.T) {
	t.Parallel()

	var f Fields
	f.Set("k", String("first"))
	if f.SetIfAbsent("k", String("second")) {
		t.Fatal("SetIfAbsent overwrote an existing key")
	}
	v, _ := f.Get("k")
	if s, _ := v.AsString(); s != "first" {
		t.Fatalf("k = %q, want first", s)
	}
}

func TestEntry_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	in := Entry{
		Timestamp: time.UnixMilli(1700000000123),
		Level:     LevelWarn,
		Source:    "api",
		Category:  StringPtr("http"),
		Message:   "slow request",
		Tags:      []string{"perf"},
		Fields:    NewFields("ms", Int(812)),
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out Entry
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !out.Timestamp.Equal(in.Timestamp) || out.Level != in.Level || out.Source != in.Source {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if cat, ok := out.CategoryValue(); !ok || cat != "http" {
		t.Fatalf("category = %q/%v, want http", cat, ok)
	}
	if _, ok := out.CallerValue(); ok {
		t.Fatal("caller should stay absent")
	}
	if !out.Fields.Equal(in.Fields) {
		t.Fatalf("fields = %v", out.Fields.Keys())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"dbg", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Wrn", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
