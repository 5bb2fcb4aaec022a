package cmd

import (
	"context"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/repochain/repochain/internal/config"
	"github.com/repochain/repochain/internal/core/store"
)

// openStore opens and migrates the cache store described by cfg.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, withExitCode(foundry.ExitExternalServiceUnavailable, err)
	}
	db.ToolVersion = versionInfo.Version

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, withExitCode(foundry.ExitExternalServiceUnavailable, err)
	}
	return db, nil
}

// openConfiguredStore loads configuration and opens its store.
func openConfiguredStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return openStore(ctx, cfg)
}
