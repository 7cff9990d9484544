package ingest

import (
	"fmt"
	"strings"

	"github.com/tinytelemetry/logdeck/internal/model"
)

const (
	// ProcessorModeParse decodes JSON documents and the text-line format;
	// lines that match neither produce no entry.
	ProcessorModeParse = "parse"

	// ProcessorModePassthrough turns every line into an INFO entry without parsing.
	ProcessorModePassthrough = "passthrough"
)

// EntrySink receives entries produced by a processor.
type EntrySink interface {
	Add(entry model.Entry)
}

// EnvelopeProcessor consumes source-tagged text lines and emits entries.
type EnvelopeProcessor interface {
	Name() string
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
}

// ProcessResult holds the entry produced from one line. Entry is nil when
// the line was consumed without producing an entry.
type ProcessResult struct {
	Entry *model.Entry
}

// NewEnvelopeProcessor creates the processor for mode. An empty mode selects parse.
func NewEnvelopeProcessor(mode string, sink EntrySink, sourceName string) (EnvelopeProcessor, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ProcessorModeParse:
		return NewProcessor(sink, sourceName), nil
	case ProcessorModePassthrough:
		return NewPassthroughProcessor(sink, sourceName), nil
	default:
		return nil, fmt.Errorf("ingest: unknown processor mode %q", mode)
	}
}
