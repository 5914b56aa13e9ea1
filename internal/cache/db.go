package cache

import (
	"context"
	"time"

	"github.com/ollagram/ollagram/internal/database"
)

type DBCache struct {
	db  database.Database
	now func() time.Time
}

func NewDBCache(db database.Database) *DBCache {
	return &DBCache{db: db, now: time.Now}
}

func (c *DBCache) Get(ctx context.Context, key string) ([]byte, bool) {
	var data []byte
	var expiresAt int64
	err := c.db.GetDB().QueryRowContext(ctx,
		"SELECT data, expires_at FROM cache WHERE key = ?", key,
	).Scan(&data, &expiresAt)
	if err != nil {
		return nil, false
	}
	if c.now().UnixMilli() >= expiresAt {
		_ = c.Delete(ctx, key)
		return nil, false
	}
	return data, true
}

func (c *DBCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	_, err := c.db.ExecWithRetry(ctx,
		"INSERT OR REPLACE INTO cache (key, data, expires_at) VALUES (?, ?, ?)",
		key, data, c.now().Add(ttl).UnixMilli(),
	)
	return err
}

func (c *DBCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecWithRetry(ctx, "DELETE FROM cache WHERE key = ?", key)
	return err
}
