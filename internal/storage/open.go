package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/terra-clan/tutor-quest/internal/config"
)

// Open builds the Store selected by cfg.Storage.Backend
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	slog.Info("opening store", "backend", cfg.Storage.Backend)

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile:
		return NewFileStore(cfg.Storage.FilePath)
	case config.BackendSQLite:
		return NewSQLiteStore(ctx, cfg.Storage.SQLitePath)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, PostgresConfig{
			DSN:      cfg.Database.DSN,
			MaxConns: int32(cfg.Database.MaxConns),
			MinConns: int32(cfg.Database.MinConns),
		})
	case config.BackendRedis:
		return NewRedisStore(ctx, RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
