package redis

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/repository"
)

// NewKeyValueStore connects to redis when enabled, otherwise falls back to process memory.
func NewKeyValueStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (repository.KeyValueStore, error) {
	if !cfg.Redis.Enabled {
		logger.Info("Redis disabled, using in-memory key/value store")
		return NewMemoryStore(), nil
	}

	client, err := NewRedisClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing redis connection")
			return client.Close()
		},
	})
	return client, nil
}

var Module = fx.Module("redis",
	fx.Provide(NewKeyValueStore),
)
