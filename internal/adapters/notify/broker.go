// Package notify fans leaderboard deltas out to subscribers of one event.
//
// Delivery is best-effort and at-most-once per subscriber: Publish never
// blocks on a slow consumer, it drops the delta for that subscriber and
// counts the drop. A subscriber that missed deltas reconciles by reading
// the leaderboard directly; the broker is a latency optimization, never
// the system of record.
package notify

import (
	"context"
	"sync"

	"github.com/encorefm/encore/internal/domain/model"
	"github.com/encorefm/encore/pkg/metrics"
)

const defaultBufferSize = 64

// Subscription is one subscriber's receive side. C is closed when the
// subscription ends, either via Close or broker shutdown.
type Subscription struct {
	C <-chan model.Delta

	ch      chan model.Delta
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	release func()
}

// Close detaches the subscription and closes C. Safe to call more than
// once and safe to race with a concurrent Publish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.release()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.ch)
	})
}

// send delivers without blocking. The read lock excludes Close, so a
// publish can never hit a closed channel.
func (s *Subscription) send(delta model.Delta) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- delta:
		return true
	default:
		return false
	}
}

// Broker maintains one logical channel per event ID.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

// New constructs a Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber on the event's channel. Returns nil
// after the broker has shut down.
func (b *Broker) Subscribe(ctx context.Context, eventID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	ch := make(chan model.Delta, b.buffer)
	sub := &Subscription{C: ch, ch: ch}
	sub.release = func() { b.remove(eventID, sub) }

	set, ok := b.subs[eventID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[eventID] = set
	}
	set[sub] = struct{}{}
	metrics.UpdateNotifySubscribers(b.countLocked())

	// Detach automatically when the subscriber's context ends, so an HTTP
	// disconnect cannot leak a registration.
	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub
}

// Publish delivers delta to every current subscriber of eventID. Returns
// the number of subscribers that received it.
func (b *Broker) Publish(_ context.Context, eventID string, delta model.Delta) int {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[eventID]))
	for sub := range b.subs[eventID] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	metrics.RecordNotifyPublished()

	delivered, dropped := 0, 0
	for _, sub := range targets {
		if sub.send(delta) {
			delivered++
		} else {
			// Buffer full or already closed; the subscriber reconciles by
			// reading the leaderboard.
			dropped++
		}
	}
	if delivered > 0 {
		metrics.RecordNotifyDelivered(delivered)
	}
	if dropped > 0 {
		metrics.RecordNotifyDropped(dropped)
	}
	return delivered
}

// SubscriberCount reports the number of active subscriptions across all
// events.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.countLocked()
}

// Close terminates every subscription. Publish and Subscribe become no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.subs = make(map[string]map[*Subscription]struct{})
	b.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	metrics.UpdateNotifySubscribers(0)
}

func (b *Broker) remove(eventID string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[eventID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, eventID)
		}
	}
	metrics.UpdateNotifySubscribers(b.countLocked())
}

func (b *Broker) countLocked() int {
	n := 0
	for _, set := range b.subs {
		n += len(set)
	}
	return n
}
