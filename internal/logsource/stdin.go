package logsource

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// NewStdinSource creates a source that reads from stdin in a background goroutine.
func NewStdinSource(ctx context.Context, conf ...Config) *ReaderSource {
	// stdin is not closed on Stop
	return NewReaderSource(ctx, "stdin", io.NopCloser(os.Stdin), conf...)
}

// NewFileSource opens path and reads it to EOF. Lines are tagged with the
// file's base name.
func NewFileSource(ctx context.Context, path string, conf ...Config) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewReaderSource(ctx, filepath.Base(path), f, conf...), nil
}

// StdinIsPiped reports whether stdin is a pipe or file rather than a terminal.
func StdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
