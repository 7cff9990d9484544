package engine

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logdeck/internal/metrics"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// Observer receives engine notifications on the subscriber's own goroutine.
// Slices and snapshots passed to it are shared and must not be modified.
type Observer interface {
	OnEntries(batch []model.Entry)
	OnMetadataChanged(meta model.Metadata)
	OnCleared()
}

// ObserverFuncs adapts plain functions to Observer. Nil funcs are skipped.
type ObserverFuncs struct {
	Entries         func(batch []model.Entry)
	MetadataChanged func(meta model.Metadata)
	Cleared         func()
}

func (o ObserverFuncs) OnEntries(batch []model.Entry) {
	if o.Entries != nil {
		o.Entries(batch)
	}
}

func (o ObserverFuncs) OnMetadataChanged(meta model.Metadata) {
	if o.MetadataChanged != nil {
		o.MetadataChanged(meta)
	}
}

func (o ObserverFuncs) OnCleared() {
	if o.Cleared != nil {
		o.Cleared()
	}
}

type eventKind uint8

const (
	eventEntries eventKind = iota
	eventMetadata
	eventCleared
)

// A cleared event carries the reset metadata and delivers both
// OnCleared and OnMetadataChanged, so the pair cannot be split by overflow.
type event struct {
	kind    eventKind
	entries []model.Entry
	meta    model.Metadata
}

// Subscription is one registered observer with its bounded event queue.
type Subscription struct {
	id       uint64
	observer Observer
	limit    int
	log      zerolog.Logger
	dropped  *atomic.Uint64

	mu     sync.Mutex
	queue  []event
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newSubscription(id uint64, o Observer, limit int, log zerolog.Logger, dropped *atomic.Uint64) *Subscription {
	s := &Subscription{
		id:       id,
		observer: o,
		limit:    limit,
		log:      log.With().Uint64("subscriber", id).Logger(),
		dropped:  dropped,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() uint64 { return s.id }

// enqueue is called with the engine write lock held, which fixes
// the order of events across subscribers.
func (s *Subscription) enqueue(ev event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.limit && !s.makeRoom(ev) {
		s.mu.Unlock()
		s.drop(1)
		return
	}
	s.queue = append(s.queue, ev)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

// makeRoom frees one slot for ev. It drops the oldest entries event,
// otherwise a metadata event superseded by a later one (or by ev, or by a
// cleared event that carries its own metadata). Cleared and metadata events
// are admitted past the limit when nothing can be freed; at most one queued
// metadata event survives, so the queue stays bounded. Returns false when
// ev itself should be dropped. Called with s.mu held.
func (s *Subscription) makeRoom(ev event) bool {
	for i, queued := range s.queue {
		if queued.kind == eventEntries {
			s.removeAt(i)
			s.drop(1)
			return true
		}
	}

	lastMeta := -1
	if ev.kind != eventEntries {
		lastMeta = len(s.queue)
	}
	for i := len(s.queue) - 1; i >= 0; i-- {
		switch s.queue[i].kind {
		case eventCleared:
			if lastMeta < 0 {
				lastMeta = i
			}
			continue
		case eventEntries:
			continue
		}
		if lastMeta >= 0 {
			s.removeAt(i)
			s.drop(1)
			return true
		}
		lastMeta = i
	}

	return ev.kind != eventEntries
}

func (s *Subscription) removeAt(i int) {
	copy(s.queue[i:], s.queue[i+1:])
	s.queue[len(s.queue)-1] = event{}
	s.queue = s.queue[:len(s.queue)-1]
}

func (s *Subscription) drop(n int) {
	s.dropped.Add(uint64(n))
	metrics.DeliveriesDropped.Add(float64(n))
}

func (s *Subscription) run() {
	defer close(s.done)
	for range s.wake {
		for {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.removeAt(0)
			s.mu.Unlock()

			s.deliver(ev)
		}
	}
}

func (s *Subscription) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("engine: observer panicked")
		}
	}()

	switch ev.kind {
	case eventEntries:
		s.observer.OnEntries(ev.entries)
	case eventMetadata:
		s.observer.OnMetadataChanged(ev.meta)
	case eventCleared:
		s.observer.OnCleared()
		s.observer.OnMetadataChanged(ev.meta)
	}
}

// close stops delivery. Pending events are discarded.
func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	close(s.wake)
	s.mu.Unlock()
}

// pending returns the number of queued events.
func (s *Subscription) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
