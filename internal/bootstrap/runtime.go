// Package bootstrap connects the runtime dependencies of the API process.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"classifieds/internal/cache"
	"classifieds/internal/config"
	"classifieds/internal/database"
	"classifieds/internal/middleware"
	"classifieds/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const dependencyTimeout = 10 * time.Second

// Runtime holds the connected backing services. Redis and Store are nil when the
// service is unreachable or not configured; features that need them degrade.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Store storage.ObjectStore
}

// InitRuntime connects the database (applying the schema policy), Redis and the
// object store.
func InitRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	rt := &Runtime{DB: db}

	redisCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(redisCtx, cfg.RedisURL)
		if err != nil {
			middleware.Logger.Warn("redis unavailable, rate limiting and live notifications disabled", "error", err)
		} else {
			rt.Redis = rdb
		}
	}

	if cfg.StorageEnabled() {
		storeCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
		defer cancel()
		store, err := storage.NewMinioStore(storeCtx, storage.MinioConfig{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Bucket:    cfg.StorageBucket,
			UseSSL:    cfg.StorageUseSSL,
			Region:    cfg.StorageRegion,
		})
		if err != nil {
			return nil, fmt.Errorf("object storage initialization failed: %w", err)
		}
		rt.Store = store
	}

	return rt, nil
}
