package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/adapters/store/memory"
	"github.com/encorefm/encore/internal/adapters/store/remote"
	"github.com/encorefm/encore/internal/adapters/store/sqlite"
	"github.com/encorefm/encore/pkg/logger"
)

// Persistence modes.
const (
	// ModeMemory keeps the ledger in process memory. Non-durable; responses
	// are flagged as simulated.
	ModeMemory = "memory"
	// ModeSQLite keeps the ledger in a local SQLite database.
	ModeSQLite = "sqlite"
	// ModeRemote delegates the ledger to another instance's wire surface,
	// which is then authoritative for balances and aggregates.
	ModeRemote = "remote"
)

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	Mode          string
	Path          string
	RemoteURL     string
	RemoteToken   string
	FallbackLocal bool
}

// openStore resolves the configured persistence mode into a concrete
// store. Remote mode is probed at startup; an unreachable remote fails
// startup unless FallbackLocal explicitly permits degrading to the
// simulated store.
func openStore(ctx context.Context, cfg StoreConfig, log logger.Logger) (store.Store, error) {
	switch cfg.Mode {
	case ModeMemory, "":
		return memory.New(), nil

	case ModeSQLite:
		st, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger at %q: %w", cfg.Path, err)
		}
		return st, nil

	case ModeRemote:
		if cfg.RemoteURL == "" {
			return nil, ErrRemoteURLRequired
		}
		st, err := remote.New(cfg.RemoteURL, cfg.RemoteToken)
		if err != nil {
			return nil, fmt.Errorf("configure remote ledger: %w", err)
		}
		if _, err := st.AccountIDs(ctx); err != nil && errors.Is(err, store.ErrUnavailable) {
			if !cfg.FallbackLocal {
				return nil, fmt.Errorf("remote ledger %q unreachable: %w", cfg.RemoteURL, err)
			}
			log.Warn(ctx, "remote ledger unreachable; falling back to simulated store",
				logger.String("remote_url", cfg.RemoteURL), logger.Error(err))
			return memory.New(), nil
		}
		return st, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStoreMode, cfg.Mode)
	}
}
