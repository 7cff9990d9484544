package logsource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logdeck/internal/logging"
	"github.com/tinytelemetry/logdeck/internal/model"
)

const (
	// DefaultBuffer is the default channel buffer size for source lines.
	DefaultBuffer = 50_000

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

// Config holds tunable parameters for a reader-backed source.
type Config struct {
	BufferSize  int
	MaxLineSize int
}

// ReaderSource reads newline-delimited lines from an io.Reader.
type ReaderSource struct {
	name     string
	ch       chan model.IngestEnvelope
	cancel   context.CancelFunc
	closer   io.Closer
	stopOnce sync.Once
	log      zerolog.Logger
}

// NewReaderSource starts reading r in a background goroutine. Lines are
// tagged with name. If r is an io.Closer it is closed on Stop and at EOF.
func NewReaderSource(ctx context.Context, name string, r io.Reader, conf ...Config) *ReaderSource {
	bufferSize := DefaultBuffer
	maxLineSize := DefaultMaxLineSize
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		ch:     make(chan model.IngestEnvelope, bufferSize),
		cancel: cancel,
		log:    logging.With("logsource").With().Str("source", name).Logger(),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	go s.read(ctx, r, maxLineSize)
	return s
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.ch)
	defer s.closeReader()

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, min(64*1024, maxLineSize))
	scanner.Buffer(buf, maxLineSize)

	// A single goroutine runs the blocking scan so context cancellation is
	// noticed without spawning a goroutine per line.
	results := make(chan string)
	go func() {
		defer close(results)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case results <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				s.log.Warn().Int("max_bytes", maxLineSize).Msg("line exceeded max size, stopping source")
				return
			}
			if ctx.Err() == nil {
				s.log.Error().Err(err).Msg("scanner error")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-results:
			if !ok {
				return
			}
			select {
			case s.ch <- model.IngestEnvelope{Source: s.name, Line: line}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *ReaderSource) closeReader() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

func (s *ReaderSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *ReaderSource) Name() string                       { return s.name }

// Stop cancels reading and closes the underlying reader when it can be closed.
// It is safe to call more than once.
func (s *ReaderSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.closeReader()
	})
}
