// Package store selects the snapshot storage backend from configuration.
package store

import (
	"fmt"
	"log/slog"

	"github.com/brandoz2255/k8s-dashboard/cmd/dashboard/config"
	"github.com/brandoz2255/k8s-dashboard/pkg/storage"
)

// New creates the storage backend named by cfg.Storage.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("using Redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		return s, nil
	case "memory", "":
		logger.Info("using in-memory storage", "ttl", cfg.MemoryTTL)
		return storage.NewMemoryStoreWithTTL(cfg.MemoryTTL, 0), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
