package app

import (
	"context"
	"fmt"

	"github.com/vedmemory/ved/config"
	"github.com/vedmemory/ved/pkg/cache"
	"github.com/vedmemory/ved/pkg/logger"
	"github.com/vedmemory/ved/pkg/storage"
	"github.com/vedmemory/ved/pkg/storage/badger"
	"github.com/vedmemory/ved/pkg/storage/memory"
	"github.com/vedmemory/ved/pkg/storage/postgres"
	"github.com/vedmemory/ved/pkg/storage/sqlite"
)

// OpenStorage opens the backend selected by cfg.Type. SQL backends have
// their schema applied.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (storage.Storage, error) {
	log = logger.Component(log, "storage")

	switch cfg.Type {
	case "", "memory":
		log.Info("Initialized memory storage")
		return memory.NewMemoryStorage(), nil
	case "badger":
		store, err := badger.NewBadgerStorage(&badger.Config{
			Path:             cfg.Badger.Path,
			SyncWrites:       cfg.Badger.SyncWrites,
			ValueLogFileSize: cfg.Badger.ValueLogFileSize,
		})
		if err != nil {
			return nil, fmt.Errorf("open badger storage: %w", err)
		}
		log.Info("Initialized Badger storage", "path", cfg.Badger.Path)
		return store, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, &sqlite.Config{Path: cfg.SQLite.Path})
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		log.Info("Initialized SQLite storage", "path", cfg.SQLite.Path)
		return store, nil
	case "postgres":
		store, err := postgres.Open(ctx, &postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			Migrate:         true,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		log.Info("Initialized PostgreSQL storage")
		return store, nil
	default:
		return nil, &UnsupportedBackendError{Kind: "storage", Type: cfg.Type}
	}
}

// Migrate applies the SQL schema of the configured backend and closes the
// connection again.
func Migrate(ctx context.Context, cfg config.StorageConfig, log logger.Logger) error {
	if cfg.Type != "sqlite" && cfg.Type != "postgres" {
		return &UnsupportedBackendError{Kind: "migration", Type: cfg.Type}
	}
	store, err := OpenStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	return store.Close()
}

// OpenCache builds the retrieval cache. It returns nil when caching is off.
func OpenCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Type {
	case "", "memory":
		return cache.NewLRU(cfg.Size, cfg.TTL), nil
	case "redis":
		return cache.NewRedis(ctx, cache.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.TTL,
		})
	default:
		return nil, &UnsupportedBackendError{Kind: "cache", Type: cfg.Type}
	}
}
