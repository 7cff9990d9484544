package main

import (
	"context"
	"sync"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// DefaultMuxBuffer is the default channel buffer size for the source multiplexer.
const DefaultMuxBuffer = 50_000

// SourceMultiplexer merges the text-stream sources into a single read-only
// stream. Lines from one source keep their relative order; lines from
// different sources interleave in arrival order.
type SourceMultiplexer struct {
	ctx    context.Context
	cancel context.CancelFunc

	sources []NamedLogSource
	lines   chan model.IngestEnvelope

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSourceMultiplexer(parent context.Context, sources []NamedLogSource, buffer int) *SourceMultiplexer {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		ctx:     ctx,
		cancel:  cancel,
		sources: sources,
		lines:   make(chan model.IngestEnvelope, buffer),
	}
}

// Start begins forwarding. Lines is closed once every source is drained.
func (m *SourceMultiplexer) Start() {
	m.startOnce.Do(func() {
		for _, src := range m.sources {
			m.wg.Add(1)
			go m.forward(src)
		}
		go func() {
			m.wg.Wait()
			m.closeOutput()
		}()
	})
}

// Stop stops every source and closes Lines without draining it.
func (m *SourceMultiplexer) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		m.wg.Wait()
		m.closeOutput()
	})
}

func (m *SourceMultiplexer) HasSources() bool {
	return len(m.sources) > 0
}

// SourceNames returns the source names in registration order.
func (m *SourceMultiplexer) SourceNames() []string {
	names := make([]string, len(m.sources))
	for i, src := range m.sources {
		names[i] = src.Name()
	}
	return names
}

// PrimarySourceName is the fallback source for lines that name none.
func (m *SourceMultiplexer) PrimarySourceName() string {
	if len(m.sources) == 0 {
		return model.DefaultSource
	}
	return m.sources[0].Name()
}

func (m *SourceMultiplexer) Lines() <-chan model.IngestEnvelope {
	return m.lines
}

func (m *SourceMultiplexer) forward(src NamedLogSource) {
	defer m.wg.Done()

	in := src.Lines()
	for {
		select {
		case <-m.ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			if env.Source == "" {
				env.Source = src.Name()
			}
			select {
			case m.lines <- env:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

func (m *SourceMultiplexer) closeOutput() {
	m.closeOnce.Do(func() {
		close(m.lines)
	})
}
