package cache

import (
	"context"
	"time"

	"github.com/ollagram/ollagram/internal/logger"
)

// MultiLevelCache reads through memory first and writes to both levels.
// A hit in the persistent level is promoted to memory for at most promoteTTL.
type MultiLevelCache struct {
	memory     Cache
	persistent Cache
	promoteTTL time.Duration
	logger     logger.Logger
}

func NewMultiLevelCache(memory, persistent Cache, promoteTTL time.Duration, log logger.Logger) *MultiLevelCache {
	return &MultiLevelCache{
		memory:     memory,
		persistent: persistent,
		promoteTTL: promoteTTL,
		logger:     log,
	}
}

func (c *MultiLevelCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if data, ok := c.memory.Get(ctx, key); ok {
		return data, true
	}
	data, ok := c.persistent.Get(ctx, key)
	if !ok {
		return nil, false
	}
	_ = c.memory.Set(ctx, key, data, c.promoteTTL)
	return data, true
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.persistent.Set(ctx, key, data, ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to write persistent cache")
		return err
	}
	return c.memory.Set(ctx, key, data, min(ttl, c.promoteTTL))
}

func (c *MultiLevelCache) Delete(ctx context.Context, key string) error {
	if err := c.memory.Delete(ctx, key); err != nil {
		c.logger.WithError(err).Error("Failed to delete from memory cache")
	}
	return c.persistent.Delete(ctx, key)
}
