// Package dedupe tracks client request IDs so a retried bid submission is
// suppressed before any tokens move.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen request IDs to give PlaceBid at-most-once semantics
// for callers that supply a request identifier.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was seen and records it if
	// not. Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen set so the request can be
	// retried. Used when a bid was marked as seen but failed to resolve.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper is a bounded in-memory Deduper. When the set is full the
// oldest recorded ID is evicted, so the bound is the length of the retry
// window, not a correctness limit.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // id -> insertion generation
	order   []slot            // FIFO eviction order
	gen     uint64
	maxSize int
	size    atomic.Int64
}

// slot pins an order entry to the generation it was recorded at. An ID that
// was unrecorded and later recorded again gets a fresh slot; the old one no
// longer matches and must not evict the new record.
type slot struct {
	id  string
	gen uint64
}

// NewInMemoryDeduper creates a bounded in-memory deduper. A maxSize <= 0
// disables eviction.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50_000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize {
			d.evictOldestLocked()
		}
	}

	d.gen++
	d.seen[id] = d.gen
	d.order = append(d.order, slot{id: id, gen: d.gen})
	d.size.Store(int64(len(d.seen)))
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// The order slice keeps a stale slot; its generation no longer matches,
	// so eviction skips it.
	delete(d.seen, id)
	d.size.Store(int64(len(d.seen)))
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

func (d *inMemoryDeduper) evictOldestLocked() {
	for len(d.order) > 0 {
		oldest := d.order[0]
		d.order = d.order[1:]
		if gen, ok := d.seen[oldest.id]; ok && gen == oldest.gen {
			delete(d.seen, oldest.id)
			return
		}
	}
}
