// Package redis provides the Redis connection and a typed cache on top
// of it. It holds per-principal file inventory snapshots so repeated
// reconciliation runs do not re-walk unchanged drives.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tenantaudit/api/internal/config"
	"github.com/tenantaudit/api/pkg/logger"
)

// NewClient creates a Redis client and verifies connectivity. The ping
// is retried with a doubling delay; a cold-started Redis container
// usually needs a few seconds.
func NewClient(cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	var err error
	delay := cfg.MinRetryDelay
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn("redis ping failed, retrying",
				"attempt", attempt,
				"delay", delay.String(),
				"error", err,
			)
			time.Sleep(delay)
			delay *= 2
			if delay > cfg.MaxRetryDelay {
				delay = cfg.MaxRetryDelay
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
		err = client.Ping(ctx).Err()
		cancel()
		if err == nil {
			log.Info("redis connected", "addr", cfg.Addr(), "db", cfg.DB)
			return client, nil
		}
	}

	client.Close()
	return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr(), err)
}
