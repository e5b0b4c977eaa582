package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter 按消息 key 统计失败次数，最后一次失败后 ttl 内无新失败则自动清零
type RetryCounter struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRetryCounter(rdb redis.Cmdable, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet 计数 +1 并刷新过期时间；INCR 与 EXPIRE 在同一个 MULTI 中执行，不会留下永不过期的计数
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("retry counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Reset 处理成功后清除计数
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey retry:<handler>:<key>
func FormatRetryKey(handler, key string) string {
	return fmt.Sprintf("retry:%s:%s", handler, key)
}
