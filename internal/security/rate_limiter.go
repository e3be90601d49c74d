package security

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// formatScore renders a float64 score with the full precision ZRemRangeByScore
// needs to match timestamps recorded as ZAdd members.
func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RateLimiter tracks request counts in a 1-second sliding window per key
// (original_source uses a Python list of monotonic timestamps pruned on
// every check; this mirrors that exactly).
type RateLimiter interface {
	Record(ctx context.Context, key string) (currentRate int, err error)
}

// InMemoryRateLimiter is the single-process fallback used when no Redis
// client is configured.
type InMemoryRateLimiter struct {
	mu       sync.Mutex
	counters map[string][]time.Time
}

func NewInMemoryRateLimiter() *InMemoryRateLimiter {
	return &InMemoryRateLimiter{counters: make(map[string][]time.Time)}
}

func (l *InMemoryRateLimiter) Record(ctx context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-time.Second)
	kept := l.counters[key][:0]
	for _, t := range l.counters[key] {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	rate := len(kept)
	l.counters[key] = append(kept, now)
	return rate, nil
}

// RedisRateLimiter uses a per-key sorted set for a distributed 1-second
// sliding window, grounded on the same window semantics as
// _check_rate_limit but shared across instances via Redis.
type RedisRateLimiter struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, keyPrefix: "acgs2:security:ratelimit:"}
}

func (l *RedisRateLimiter) Record(ctx context.Context, key string) (int, error) {
	fullKey := l.keyPrefix + key
	now := time.Now()
	member := now.UnixNano()
	windowStartScore := float64(now.Add(-time.Second).UnixNano())

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "0", formatScore(windowStartScore))
	pipe.ZAdd(ctx, fullKey, &redis.Z{Score: float64(member), Member: member})
	card := pipe.ZCard(ctx, fullKey)
	pipe.Expire(ctx, fullKey, 2*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	count, err := card.Result()
	return int(count), err
}
