package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// Tests below touch the global logger and must not run in parallel.

func TestInitJSON(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})

	Debug().Msg("hidden")
	l := With("engine")
	l.Info().Int("n", 3).Msg("ingested")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %s", out)
	}
	for _, want := range []string{`"component":"engine"`, `"n":3`, `"message":"ingested"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}

	var line struct {
		Time string `json:"time"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if _, err := time.Parse(time.RFC3339Nano, line.Time); err != nil {
		t.Fatalf("time field %q is not RFC3339Nano: %v", line.Time, err)
	}
}

func TestTimeFieldFormatSetOnce(t *testing.T) {
	if zerolog.TimeFieldFormat != time.RFC3339Nano {
		t.Fatalf("TimeFieldFormat = %q before Init", zerolog.TimeFieldFormat)
	}
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	zerolog.TimeFieldFormat = time.RFC3339
	t.Cleanup(func() { zerolog.TimeFieldFormat = time.RFC3339Nano })
	Init(Config{Level: "info", Output: &bytes.Buffer{}})
	if zerolog.TimeFieldFormat != time.RFC3339 {
		t.Fatal("Init rewrote the global TimeFieldFormat")
	}
}

func TestInitConsole(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "console", Output: &buf})
	Warn().Msg("disk low")

	if !strings.Contains(buf.String(), "disk low") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("console output = %q", buf.String())
	}
}
