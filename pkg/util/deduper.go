package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper creates a deduper; logger may be nil.
func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// FormatDedupKey formats the dedup key for a handler + event key
func FormatDedupKey(handler, key string) string {
	return fmt.Sprintf("dedup:%s:%s", handler, key)
}

// AcquireOnce tries to acquire a dedup lock for a given handler + event key
// returns true if this is the FIRST time processing
// returns false if it's a duplicate
func (d *Deduper) AcquireOnce(ctx context.Context, handler, key string) bool {
	dedupKey := FormatDedupKey(handler, key)

	ok, err := d.rdb.SetNX(ctx, dedupKey, 1, d.ttl).Result()
	if err != nil {
		// Redis 挂了？当 redis 不可用时，不阻止处理，返回 true
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("dedup_key", dedupKey),
		)
	}

	return ok
}

// Release 删除去重锁，用于处理失败后允许 MQ 重投时再次处理
func (d *Deduper) Release(ctx context.Context, handler, key string) {
	if err := d.rdb.Del(ctx, FormatDedupKey(handler, key)).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup lock",
			zap.String("handler", handler),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
