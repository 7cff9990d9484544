package ingest

import (
	"sync"
	"time"

	"github.com/tinytelemetry/logdeck/internal/logparse"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// PassthroughProcessor is a lightweight processor that skips decoding.
// Every non-empty line becomes an INFO entry whose message is the line
// with ANSI sequences removed.
type PassthroughProcessor struct {
	mu         sync.RWMutex
	sink       EntrySink
	sourceName string
	now        func() time.Time
}

// NewPassthroughProcessor creates a new passthrough processor.
func NewPassthroughProcessor(sink EntrySink, sourceName string) *PassthroughProcessor {
	return &PassthroughProcessor{
		sink:       sink,
		sourceName: sourceName,
		now:        time.Now,
	}
}

func (p *PassthroughProcessor) Name() string { return ProcessorModePassthrough }

// ProcessLine processes an untagged line using the processor source name.
func (p *PassthroughProcessor) ProcessLine(line string) *ProcessResult {
	return p.ProcessEnvelope(model.IngestEnvelope{Line: line})
}

// ProcessEnvelope processes one source-tagged line.
func (p *PassthroughProcessor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	if env.Line == "" {
		return nil
	}

	source := env.Source
	if source == "" {
		source = p.getSourceName()
	}
	if source == "" {
		source = model.DefaultSource
	}

	entry := model.Entry{
		Timestamp: p.now(),
		Level:     model.LevelInfo,
		Source:    source,
		Message:   sanitizeLogMessage(logparse.StripANSI(env.Line)),
	}
	if p.sink != nil {
		p.sink.Add(entry)
	}
	return &ProcessResult{Entry: &entry}
}

// SetSourceName updates the default source name for untagged lines.
func (p *PassthroughProcessor) SetSourceName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceName = name
}

func (p *PassthroughProcessor) getSourceName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sourceName
}
