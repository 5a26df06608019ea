// Package storage selects the market data store named in configuration.
package storage

import (
	"fmt"

	"ichimokuBot/internal/adapters/postgres"
	"ichimokuBot/internal/adapters/sqlite"
	"ichimokuBot/internal/ports"
)

// Options names a backend and its connection settings.
type Options struct {
	Backend     string // "sqlite" or "postgres"
	DBPath      string
	PostgresDSN string
	Symbol      string
}

// Open connects to the configured backend.
func Open(opts Options, logger ports.Logger) (ports.MarketDataStore, error) {
	switch opts.Backend {
	case "", "sqlite":
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: opts.DBPath, Symbol: opts.Symbol, Logger: logger})
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres":
		repo, err := postgres.NewRepository(postgres.Config{DSN: opts.PostgresDSN, Symbol: opts.Symbol, Logger: logger})
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", ports.ErrConfigurationError, opts.Backend)
	}
}
