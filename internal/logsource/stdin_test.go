package logsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

func collect(t *testing.T, src LogSource) []model.IngestEnvelope {
	t.Helper()
	var out []model.IngestEnvelope
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env, ok := <-src.Lines():
			if !ok {
				return out
			}
			out = append(out, env)
		case <-deadline:
			t.Fatal("timed out waiting for lines channel to close")
		}
	}
}

func TestReaderSourceReadsLines(t *testing.T) {
	t.Parallel()

	src := NewReaderSource(context.Background(), "app", strings.NewReader("one\n\ntwo\r\nthree"))
	got := collect(t, src)

	if len(got) != 3 {
		t.Fatalf("lines = %+v, want 3", got)
	}
	for i, want := range []string{"one", "two", "three"} {
		if got[i].Line != want || got[i].Source != "app" {
			t.Errorf("line %d = %+v, want %q from app", i, got[i], want)
		}
	}
}

func TestReaderSourceStopClosesLines(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := NewReaderSource(context.Background(), "pipe", r)
	src.Stop()

	select {
	case _, ok := <-src.Lines():
		if ok {
			t.Fatal("expected lines channel to be closed after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lines channel to close")
	}
}

func TestReaderSourceStopIsIdempotent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := NewReaderSource(context.Background(), "pipe", r)
	src.Stop()
	src.Stop()
}

func TestReaderSourceLineTooLong(t *testing.T) {
	t.Parallel()

	input := strings.Repeat("x", 64) + "\nshort\n"
	src := NewReaderSource(context.Background(), "big", strings.NewReader(input), Config{MaxLineSize: 16})
	if got := collect(t, src); len(got) != 0 {
		t.Fatalf("lines = %+v, want none after oversized line", got)
	}
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "service.log")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := NewFileSource(context.Background(), path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	got := collect(t, src)
	if len(got) != 2 || got[0].Source != "service.log" {
		t.Fatalf("lines = %+v", got)
	}

	if _, err := NewFileSource(context.Background(), filepath.Join(t.TempDir(), "missing.log")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
