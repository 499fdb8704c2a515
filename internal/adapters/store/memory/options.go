package memory

import "time"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the time source. Tests use this to pin first-seen
// ordering without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}
