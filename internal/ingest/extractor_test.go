package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tinytelemetry/logdeck/internal/model"
)

func TestDecodeStructured_RoundTrip(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"ts":     int64(1700000000000),
		"lvl":    "ERR",
		"src":    "svc",
		"msg":    "boom",
		"tags":   []string{"x", "y"},
		"fields": map[string]any{"n": 1, "ok": true},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	entry, err := DecodeStructured(raw)
	if err != nil {
		t.Fatalf("DecodeStructured: %v", err)
	}
	if entry.Level != model.LevelError {
		t.Errorf("level = %v, want ERROR", entry.Level)
	}
	if entry.Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("ts = %d", entry.Timestamp.UnixMilli())
	}
	if entry.Source != "svc" || entry.Message != "boom" {
		t.Errorf("source=%q message=%q", entry.Source, entry.Message)
	}
	if len(entry.Tags) != 2 || entry.Tags[0] != "x" || entry.Tags[1] != "y" {
		t.Errorf("tags = %v", entry.Tags)
	}
	if entry.Fields.Len() != 2 {
		t.Fatalf("fields = %v, want n and ok", entry.Fields.Keys())
	}
	if v, _ := entry.Fields.Get("n"); !v.Equal(model.Int(1)) {
		t.Errorf("n = %s", v.Text())
	}
	if v, _ := entry.Fields.Get("ok"); !v.Equal(model.Bool(true)) {
		t.Errorf("ok = %s", v.Text())
	}
}

func TestDecodeStructured_TimestampPrecedence(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Decoder{Now: func() time.Time { return fixed }}

	tests := []struct {
		name string
		line string
		want time.Time
	}{
		{"millis wins", `{"ts":1000,"time":"2024-01-15T10:30:45Z"}`, time.UnixMilli(1000)},
		{"rfc3339", `{"time":"2024-01-15T10:30:45.250Z"}`, time.Date(2024, 1, 15, 10, 30, 45, 250_000_000, time.UTC)},
		{"unparseable falls back", `{"time":"yesterday"}`, fixed},
		{"absent falls back", `{"msg":"x"}`, fixed},
		{"string millis", `{"ts":"1500"}`, time.UnixMilli(1500)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := d.DecodeStructured([]byte(tt.line))
			if err != nil {
				t.Fatalf("DecodeStructured: %v", err)
			}
			if !entry.Timestamp.Equal(tt.want) {
				t.Fatalf("timestamp = %v, want %v", entry.Timestamp, tt.want)
			}
		})
	}
}

func TestDecodeStructured_AlternateNames(t *testing.T) {
	t.Parallel()

	entry, err := DecodeStructured([]byte(`{"level":"warning","message":"disk low","src":"node"}`))
	if err != nil {
		t.Fatalf("DecodeStructured: %v", err)
	}
	if entry.Level != model.LevelWarn {
		t.Errorf("level = %v, want WARN", entry.Level)
	}
	if entry.Message != "disk low" {
		t.Errorf("message = %q", entry.Message)
	}

	entry, err = DecodeStructured([]byte(`{"lvl":"dbg","level":"error","msg":"a","message":"b"}`))
	if err != nil {
		t.Fatalf("DecodeStructured: %v", err)
	}
	if entry.Level != model.LevelDebug || entry.Message != "a" {
		t.Errorf("lvl/msg should win: level=%v message=%q", entry.Level, entry.Message)
	}
}

func TestDecodeStructured_Defaults(t *testing.T) {
	t.Parallel()

	entry, err := DecodeStructured([]byte(`{}`))
	if err != nil {
		t.Fatalf("DecodeStructured: %v", err)
	}
	if entry.Level != model.LevelInfo {
		t.Errorf("level = %v, want INFO default", entry.Level)
	}
	if entry.Source != model.DefaultSource {
		t.Errorf("source = %q, want %q", entry.Source, model.DefaultSource)
	}
	if entry.Category != nil || entry.Caller != nil {
		t.Error("optional fields should be absent")
	}
}

func TestDecodeStructured_EmptyCategoryIsPresent(t *testing.T) {
	t.Parallel()

	entry, err := DecodeStructured([]byte(`{"src":"a","cat":""}`))
	if err != nil {
		t.Fatalf("DecodeStructured: %v", err)
	}
	cat, ok := entry.CategoryValue()
	if !ok || cat != "" {
		t.Fatalf("category = %q/%v, want present empty", cat, ok)
	}
}

func TestDecodeStructured_FieldMergeOrder(t *testing.T) {
	t.Parallel()

	line := `{"src":"a","user":"top","fields":{"user":"nested","req":7},"extra":1,"_logdeck":1,"caller":"x.go:1"}`
	entry, err := DecodeStructured([]byte(line))
	if err != nil {
		t.Fatalf("DecodeStructured: %v", err)
	}

	keys := entry.Fields.Keys()
	want := []string{"user", "req", "extra"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	if v, _ := entry.Fields.Get("user"); !v.Equal(model.String("nested")) {
		t.Fatalf("user = %q, nested container must win", v.Text())
	}
	if caller, _ := entry.CallerValue(); caller != "x.go:1" {
		t.Fatalf("caller = %q", caller)
	}
}

func TestDecodeStructured_Invalid(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"this is not json", `[1,2]`, `"str"`, `{"a":`} {
		_, err := DecodeStructured([]byte(line))
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Errorf("DecodeStructured(%q) err = %v, want *DecodeError", line, err)
		}
	}

	_, err := DecodeStructured([]byte(`[1]`))
	if !errors.Is(err, ErrNotObject) {
		t.Errorf("array document err = %v, want ErrNotObject", err)
	}
}

func TestDecodeStructured_PinoNumericLevel(t *testing.T) {
	t.Parallel()

	entry, err := DecodeStructured([]byte(`{"level":50,"msg":"failed"}`))
	if err != nil {
		t.Fatalf("DecodeStructured: %v", err)
	}
	if entry.Level != model.LevelError {
		t.Fatalf("level = %v, want ERROR", entry.Level)
	}
}
