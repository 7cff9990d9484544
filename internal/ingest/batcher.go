package ingest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/logdeck/internal/logging"
	"github.com/tinytelemetry/logdeck/internal/metrics"
	"github.com/tinytelemetry/logdeck/internal/model"
)

const (
	// DefaultBatchSize is the number of entries that triggers an immediate flush.
	DefaultBatchSize = 500

	// DefaultFlushInterval is how often a partial batch is flushed.
	DefaultFlushInterval = 100 * time.Millisecond

	// DefaultFlushQueueSize is the number of batches that can be queued for flushing.
	DefaultFlushQueueSize = 64
)

// BatchWriter receives flushed batches. *engine.Engine satisfies it.
type BatchWriter interface {
	Ingest(batch []model.Entry)
}

// BatcherConfig holds tunable parameters for the batcher.
type BatcherConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// Batcher groups entries from the text stream into batches and hands them
// to the writer from a single flush goroutine, preserving arrival order.
// When the flush queue is full, Add blocks until the writer catches up.
type Batcher struct {
	writer        BatchWriter
	mu            sync.Mutex
	pending       []model.Entry
	flushChan     chan []model.Entry
	maxBatch      int
	flushInterval time.Duration
	stopped       bool
	done          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	log           zerolog.Logger

	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix seconds of last backpressure log
}

// NewBatcher creates a batcher that flushes to writer.
func NewBatcher(writer BatchWriter, conf ...BatcherConfig) *Batcher {
	batchSize := DefaultBatchSize
	flushInterval := DefaultFlushInterval
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &Batcher{
		writer:        writer,
		pending:       make([]model.Entry, 0, batchSize),
		flushChan:     make(chan []model.Entry, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		log:           logging.With("batcher"),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending batch.
func (b *Batcher) tickLoop() {
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds)
// when Add has to wait for the flush queue.
func (b *Batcher) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		b.log.Warn().Int64("waits", count).Msg("flush queue full, text stream is waiting on the engine")
	}
}

func (b *Batcher) drainPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendLocked()
}

// sendLocked cuts the pending batch and queues it. Batches are cut and
// queued under b.mu so they reach the writer in order.
func (b *Batcher) sendLocked() {
	if len(b.pending) == 0 || b.stopped {
		return
	}
	batch := b.pending
	b.pending = make([]model.Entry, 0, b.maxBatch)

	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		b.flushChan <- batch
	}
}

func (b *Batcher) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		b.writer.Ingest(batch)
		metrics.EntriesIngested.WithLabelValues("stream").Add(float64(len(batch)))
	}
}

// Add queues an entry. Entries added after Stop are discarded.
func (b *Batcher) Add(entry model.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.pending = append(b.pending, entry)
	if len(b.pending) >= b.maxBatch {
		b.sendLocked()
	}
}

// Stop flushes remaining entries and waits for the writer to receive them.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// tickLoop performs the final drain before the queue is closed.
		b.tickWg.Wait()

		b.mu.Lock()
		b.stopped = true
		close(b.flushChan)
		b.mu.Unlock()

		b.wg.Wait()
	})
}
