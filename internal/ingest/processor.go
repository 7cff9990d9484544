package ingest

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logdeck/internal/logging"
	"github.com/tinytelemetry/logdeck/internal/logparse"
	"github.com/tinytelemetry/logdeck/internal/metrics"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// Processor turns text-stream lines into entries. A line starting with
// "{" opens a JSON document that may span several lines; anything else
// goes through the text-line parser.
type Processor struct {
	mu         sync.Mutex
	sink       EntrySink
	sourceName string
	decoder    Decoder
	log        zerolog.Logger

	// pending multi-line JSON documents, keyed by envelope source so
	// interleaved inputs do not corrupt each other
	pending map[string]*jsonAccumulator
}

// maxDocumentSize bounds an accumulated JSON document. A document that
// grows past it is discarded so an unbalanced "{" cannot swallow the stream.
const maxDocumentSize = 1024 * 1024

type jsonAccumulator struct {
	buf   strings.Builder
	depth int
}

// NewProcessor creates a new line processor.
func NewProcessor(sink EntrySink, sourceName string) *Processor {
	return &Processor{
		sink:       sink,
		sourceName: sourceName,
		decoder:    Decoder{Now: time.Now},
		log:        logging.With("ingest"),
		pending:    make(map[string]*jsonAccumulator),
	}
}

func (p *Processor) Name() string { return ProcessorModeParse }

// ProcessLine processes an untagged line using the processor source name.
func (p *Processor) ProcessLine(line string) *ProcessResult {
	return p.ProcessEnvelope(model.IngestEnvelope{Line: line})
}

// ProcessEnvelope processes one source-tagged line. It returns nil while a
// multi-line JSON document is still being accumulated.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	source := env.Source
	if source == "" {
		source = p.sourceName
	}

	if doc, consumed := p.accumulate(source, env.Line); consumed {
		if doc == "" {
			return nil
		}
		return p.emit(source, p.decodeJSON(doc))
	}

	if strings.TrimSpace(env.Line) == "" {
		return nil
	}
	entry, ok := logparse.DecodeTextLine(env.Line, p.decoder.now())
	if !ok {
		metrics.DecodeFailures.WithLabelValues("stream").Inc()
		return &ProcessResult{}
	}
	return p.emit(source, &entry)
}

// accumulate feeds line into the JSON accumulator for source. consumed
// reports whether the line belonged to a JSON document; doc is the
// complete document once its braces balance.
func (p *Processor) accumulate(source, line string) (doc string, consumed bool) {
	acc, open := p.pending[source]
	if !open {
		if !strings.HasPrefix(strings.TrimSpace(line), "{") {
			return "", false
		}
		acc = &jsonAccumulator{}
		p.pending[source] = acc
	}

	acc.buf.WriteString(line)
	acc.buf.WriteString("\n")
	acc.depth += CountJSONDepth(line)
	if acc.depth > 0 {
		if acc.buf.Len() > maxDocumentSize {
			delete(p.pending, source)
			metrics.DecodeFailures.WithLabelValues("stream").Inc()
			p.log.Warn().Str("source", source).Int("bytes", acc.buf.Len()).Msg("discarding oversized JSON document")
		}
		return "", true
	}

	delete(p.pending, source)
	return strings.TrimSpace(acc.buf.String()), true
}

func (p *Processor) decodeJSON(doc string) *model.Entry {
	entry, err := p.decoder.DecodeStructured([]byte(doc))
	if err != nil {
		metrics.DecodeFailures.WithLabelValues("stream").Inc()
		p.log.Debug().Err(err).Msg("skipping undecodable document")
		return nil
	}
	return &entry
}

func (p *Processor) emit(source string, entry *model.Entry) *ProcessResult {
	if entry == nil {
		return &ProcessResult{}
	}
	if (entry.Source == "" || entry.Source == model.DefaultSource) && source != "" {
		entry.Source = source
	}
	if p.sink != nil {
		p.sink.Add(*entry)
	}
	return &ProcessResult{Entry: entry}
}

// CountJSONDepth counts the net change in JSON nesting depth for a line.
func CountJSONDepth(line string) int {
	depth := 0
	inString := false
	escaped := false

	for _, char := range line {
		if escaped {
			escaped = false
			continue
		}

		switch char {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}

	return depth
}

// SetSourceName updates the source name used for untagged lines.
func (p *Processor) SetSourceName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceName = name
}
