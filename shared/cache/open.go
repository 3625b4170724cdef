package cache

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/config"
)

const defaultLocalCacheMB = 256

// Open returns a Redis cache when configured and reachable, otherwise an in-process cache
func Open(ctx context.Context, cfg config.RedisConfig) (Cache, error) {
	if cfg.Enabled() {
		rc, err := NewRedisCache(ctx, cfg)
		if err == nil {
			return rc, nil
		}
		logrus.WithError(err).Warn("Redis unavailable, falling back to in-process cache")
	}
	size := cfg.LocalCacheMB
	if size <= 0 {
		size = defaultLocalCacheMB
	}
	logrus.WithField("max_mb", size).Info("Using in-process cache")
	return NewLocalCache(int64(size) << 20)
}
