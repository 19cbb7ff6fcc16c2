package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gfgkiit/trapped/internal/app/migrate"
	"github.com/gfgkiit/trapped/internal/repository"
	"github.com/gfgkiit/trapped/internal/repository/memory"
	"github.com/gfgkiit/trapped/internal/repository/mongo"
	"github.com/gfgkiit/trapped/internal/repository/postgres"
	"github.com/gfgkiit/trapped/pkg/config"
)

// openStore connects the configured backend and makes sure its uniqueness
// guarantees are in place before the server accepts traffic.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		repo, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = repo.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		log.Info("connected to mongo", "database", cfg.MongoDatabase)
		return repo, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := runner.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database ping: %w", err)
		}
		if err := runner.Ensure(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		log.Info("connected to postgres")
		return postgres.New(pool), nil
	case config.StoreMemory:
		log.Warn("using in-memory store; registrations are lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
