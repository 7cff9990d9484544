// Package engine owns the bounded entry buffer, the derived metadata
// indexes, the active filter and the observer registry.
//
// Mutations (Ingest, UpdateMetadata, Announce, Clear) take one write lock
// for the whole operation and enqueue observer events while holding it, so
// every subscriber sees events in mutation order. Delivery happens on a
// goroutine per subscriber and never blocks producers.
package engine

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/logging"
	"github.com/tinytelemetry/logdeck/internal/metrics"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// Config holds tunable parameters for an Engine. Zero values use the defaults.
type Config struct {
	// RetentionBound is the maximum number of buffered entries.
	RetentionBound int
	// SubscriberQueue is the number of events each subscriber may have pending.
	SubscriberQueue int
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Session     string    `json:"session"`
	Started     time.Time `json:"started"`
	Entries     int       `json:"entries"`
	Bound       int       `json:"bound"`
	Ingested    uint64    `json:"ingested"`
	Evicted     uint64    `json:"evicted"`
	Dropped     uint64    `json:"dropped"`
	Subscribers int       `json:"subscribers"`
}

// Engine is safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	buffer ring
	index  index
	meta   model.Metadata // snapshot of index, rebuilt on change
	subs   []*Subscription
	closed bool

	filter atomic.Pointer[filter.Filter]

	nextSubID atomic.Uint64
	ingested  atomic.Uint64
	evicted   atomic.Uint64
	dropped   atomic.Uint64

	session  string
	started  time.Time
	subQueue int
	log      zerolog.Logger
}

// New creates an empty engine with the identity filter active.
func New(conf ...Config) *Engine {
	bound := model.DefaultRetentionBound
	queue := model.DefaultSubscriberQueue
	if len(conf) > 0 {
		if conf[0].RetentionBound > 0 {
			bound = conf[0].RetentionBound
		}
		if conf[0].SubscriberQueue > 0 {
			queue = conf[0].SubscriberQueue
		}
	}

	e := &Engine{
		buffer:   newRing(bound),
		index:    newIndex(),
		meta:     model.EmptyMetadata(),
		session:  uuid.NewString(),
		started:  time.Now(),
		subQueue: queue,
	}
	e.log = logging.With("engine").With().Str("session", e.session).Logger()
	e.filter.Store(filter.Identity())
	return e
}

// Session returns the id generated for this engine instance.
func (e *Engine) Session() string { return e.session }

// Ingest appends batch to the buffer as one contiguous run, evicting the
// oldest entries past the retention bound, and folds it into the indexes.
// Subscribers receive OnEntries(batch), then OnMetadataChanged if any index grew.
func (e *Engine) Ingest(batch []model.Entry) {
	if len(batch) == 0 {
		return
	}
	batch = slices.Clone(batch)

	e.mu.Lock()
	defer e.mu.Unlock()

	evicted := e.buffer.pushAll(batch)
	changed := false
	for _, entry := range batch {
		if e.index.add(entry) {
			changed = true
		}
	}

	e.ingested.Add(uint64(len(batch)))
	if evicted > 0 {
		e.evicted.Add(uint64(evicted))
		metrics.EntriesEvicted.Add(float64(evicted))
	}
	metrics.BufferEntries.Set(float64(e.buffer.len()))

	e.publishLocked(event{kind: eventEntries, entries: batch})
	if changed {
		e.meta = e.index.snapshot()
		e.publishLocked(event{kind: eventMetadata, meta: e.meta})
	}
}

// UpdateMetadata folds entries into the indexes without buffering them.
// It reports whether any index grew, and notifies subscribers only then.
func (e *Engine) UpdateMetadata(entries []model.Entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := false
	for _, entry := range entries {
		if e.index.add(entry) {
			changed = true
		}
	}
	if changed {
		e.meta = e.index.snapshot()
		e.publishLocked(event{kind: eventMetadata, meta: e.meta})
	}
	return changed
}

// Announce merges sources and categories declared by an application at
// connect time. It reports whether anything new was learned.
func (e *Engine) Announce(sources, categories []string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.index.announce(sources, categories) {
		return false
	}
	e.meta = e.index.snapshot()
	e.publishLocked(event{kind: eventMetadata, meta: e.meta})
	return true
}

// Clear empties the buffer and every index. Each call notifies
// OnCleared followed by an empty OnMetadataChanged, even when there
// was nothing to clear.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buffer.reset()
	e.index = newIndex()
	e.meta = model.EmptyMetadata()
	metrics.BufferEntries.Set(0)

	e.publishLocked(event{kind: eventCleared, meta: e.meta})
	e.log.Debug().Msg("buffer cleared")
}

// Snapshot returns the buffered entries matched by f in buffer order.
// A nil or identity filter copies the buffer without evaluating entries.
func (e *Engine) Snapshot(f *filter.Filter) []model.Entry {
	return e.Tail(f, 0)
}

// Tail returns the newest limit entries matched by f, oldest first.
// limit <= 0 returns every match.
func (e *Engine) Tail(f *filter.Filter, limit int) []model.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := e.buffer.len()
	if f.IsIdentity() {
		start := 0
		if limit > 0 && n > limit {
			start = n - limit
		}
		out := make([]model.Entry, 0, n-start)
		for i := start; i < n; i++ {
			out = append(out, e.buffer.at(i))
		}
		return out
	}

	var out []model.Entry
	for i := n - 1; i >= 0; i-- {
		entry := e.buffer.at(i)
		if !f.Matches(entry) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	slices.Reverse(out)
	if out == nil {
		out = []model.Entry{}
	}
	return out
}

// SetFilter replaces the active filter. nil installs the identity filter.
// Buffered entries are not re-evaluated.
func (e *Engine) SetFilter(f *filter.Filter) {
	if f == nil {
		f = filter.Identity()
	}
	e.filter.Store(f)
}

// Filter returns the active filter.
func (e *Engine) Filter() *filter.Filter {
	return e.filter.Load()
}

// Subscribe registers o. Events published after Subscribe returns are
// delivered to o in order on a dedicated goroutine.
func (e *Engine) Subscribe(o Observer) *Subscription {
	sub := newSubscription(e.nextSubID.Add(1), o, e.subQueue, e.log, &e.dropped)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		sub.close()
		return sub
	}
	e.subs = append(e.subs, sub)
	metrics.Subscribers.Set(float64(len(e.subs)))
	return sub
}

// SubscribeWithMetadata registers o like Subscribe and queues the current
// metadata as its first event. The snapshot and the registration happen
// under one lock, so no later change is delivered ahead of it.
func (e *Engine) SubscribeWithMetadata(o Observer) *Subscription {
	sub := newSubscription(e.nextSubID.Add(1), o, e.subQueue, e.log, &e.dropped)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		sub.close()
		return sub
	}
	sub.enqueue(event{kind: eventMetadata, meta: e.meta})
	e.subs = append(e.subs, sub)
	metrics.Subscribers.Set(float64(len(e.subs)))
	return sub
}

// Unsubscribe removes s. A callback that is already running is allowed
// to finish; nothing is delivered afterwards. It is safe to call from
// inside a callback.
func (e *Engine) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	e.mu.Lock()
	e.subs = slices.DeleteFunc(e.subs, func(sub *Subscription) bool { return sub == s })
	metrics.Subscribers.Set(float64(len(e.subs)))
	e.mu.Unlock()
	s.close()
}

// Close unsubscribes every observer and waits for their delivery
// goroutines to exit. It must not be called from a callback.
func (e *Engine) Close() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.closed = true
	metrics.Subscribers.Set(0)
	e.mu.Unlock()

	for _, s := range subs {
		s.close()
		<-s.done
	}
}

func (e *Engine) publishLocked(ev event) {
	for _, s := range e.subs {
		s.enqueue(ev)
	}
}

// Sources returns the sorted set of sources seen since the last clear.
func (e *Engine) Sources() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.meta.Sources)
}

// Categories returns the sorted set of categories seen since the last clear.
func (e *Engine) Categories() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.meta.Categories)
}

// Tags returns the sorted set of tags seen since the last clear.
func (e *Engine) Tags() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.meta.Tags)
}

// SourceMetadata returns the per-source aggregate for src.
func (e *Engine) SourceMetadata(src string) (model.SourceMetadata, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sm, ok := e.meta.PerSource[src]
	return sm, ok
}

// Metadata returns the current metadata snapshot. It is shared and must
// not be modified.
func (e *Engine) Metadata() model.Metadata {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.meta
}

// Len returns the number of buffered entries.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.buffer.len()
}

// Stats returns engine counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Session:     e.session,
		Started:     e.started,
		Entries:     e.buffer.len(),
		Bound:       e.buffer.bound,
		Ingested:    e.ingested.Load(),
		Evicted:     e.evicted.Load(),
		Dropped:     e.dropped.Load(),
		Subscribers: len(e.subs),
	}
}
