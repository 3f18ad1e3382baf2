package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/adscout/adscout-cli/internal/store"
)

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "adscout.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if err := cfg.Validate("store"); err != nil {
			return nil, err
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
