package service

import (
	"time"

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStoreConfig sets the persistence mode configuration.
func WithStoreConfig(cfg StoreConfig) Option {
	return func(s *Service) {
		s.storeCfg = cfg
	}
}

// WithStore injects a pre-built ledger store, bypassing mode selection.
func WithStore(ledger store.Store) Option {
	return func(s *Service) {
		if ledger != nil {
			s.ledger = ledger
		}
	}
}

// WithDedupeSize sets the size of the bid idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithNotifyBuffer sets the per-subscriber delta channel capacity.
func WithNotifyBuffer(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.notifyBuffer = size
		}
	}
}

// WithMaxLeaderboardLimit caps the number of entries a leaderboard query
// may request.
func WithMaxLeaderboardLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxLeaderboardLimit = limit
		}
	}
}

// WithReconcileInterval sets the period of the background reconciliation
// sweep. A zero or negative interval disables the sweep.
func WithReconcileInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.reconcileInterval = interval
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
