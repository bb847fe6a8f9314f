package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lastround/go/internal/dbconfig"
	"github.com/mcdev12/lastround/go/internal/results"
)

func setupDatabase(ctx context.Context, migrate bool) (*results.Store, error) {
	dbCfg := dbconfig.NewConfigFromEnv()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := results.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	log.Info().
		Str("driver", dbCfg.Driver).
		Str("database", dbCfg.Database).
		Str("host", dbCfg.Host).
		Bool("migrated", migrate).
		Msg("connected to database")
	return store, nil
}
