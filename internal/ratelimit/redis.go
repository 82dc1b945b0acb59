package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:"

// Redis is a fixed-window counter per key stored in Redis.
type Redis struct {
	client redis.UniversalClient
	quota  int
	window time.Duration
}

func NewRedis(client redis.UniversalClient, quota int, window time.Duration) *Redis {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{client: client, quota: quota, window: window}
}

// Check increments the key's counter. The window is timed by Redis from the
// key's first hit, so now is not consulted.
func (l *Redis) Check(ctx context.Context, key string, _ time.Time) (Decision, error) {
	k := redisKeyPrefix + key

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ttl := pttl.Val()
	// A negative TTL means the window was just opened, or a previous EXPIRE was lost.
	if ttl < 0 {
		if err := l.client.PExpire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		ttl = l.window
	}

	count := int(incr.Val())
	if count > l.quota {
		return Decision{Allowed: false, Limit: l.quota, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Limit: l.quota, Remaining: l.quota - count}, nil
}
