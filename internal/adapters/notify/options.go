// Package notify fans leaderboard deltas out to subscribers of one event.
package notify

// Option applies a configuration option to the Broker.
type Option func(*Broker)

// WithBufferSize sets the per-subscriber delta buffer. A subscriber whose
// buffer is full misses deltas rather than slowing publishers down.
func WithBufferSize(size int) Option {
	return func(b *Broker) {
		if size > 0 {
			b.buffer = size
		}
	}
}
