package engine

import "github.com/tinytelemetry/logdeck/internal/model"

// ring is the retention buffer. It grows by append until it reaches bound,
// then overwrites the oldest slot. head is always 0 until the ring is full.
type ring struct {
	buf   []model.Entry
	head  int
	bound int
}

func newRing(bound int) ring {
	return ring{bound: bound}
}

func (r *ring) len() int { return len(r.buf) }

// at returns the i-th oldest entry.
func (r *ring) at(i int) model.Entry {
	return r.buf[(r.head+i)%len(r.buf)]
}

// push appends e and reports whether the oldest entry was evicted to make room.
func (r *ring) push(e model.Entry) bool {
	if len(r.buf) < r.bound {
		r.buf = append(r.buf, e)
		return false
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % r.bound
	return true
}

// pushAll appends batch in order and returns the number of evicted entries.
// Entries of batch that would be evicted within the same call are skipped.
func (r *ring) pushAll(batch []model.Entry) int {
	evicted := 0
	if len(batch) > r.bound {
		skip := len(batch) - r.bound
		evicted += skip
		batch = batch[skip:]
	}
	for _, e := range batch {
		if r.push(e) {
			evicted++
		}
	}
	return evicted
}

func (r *ring) reset() {
	clear(r.buf)
	r.buf = nil
	r.head = 0
}
