package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"TradeSentinel/pkg/cache"
)

// RedisStore shares cooldowns between processes. Each key expires after its cooldown.
type RedisStore struct {
	c cache.Service
}

func NewRedisStore(c cache.Service) *RedisStore {
	return &RedisStore{c: c}
}

func (s *RedisStore) LastFired(ctx context.Context, key string) (time.Time, bool, error) {
	var raw string
	if err := s.c.Get(ctx, redisKey(key), &raw); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis get: %w", err)
	}
	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis value %q: %w", raw, err)
	}
	return time.Unix(0, ns).UTC(), true, nil
}

func (s *RedisStore) SetFired(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	if err := s.c.Set(ctx, redisKey(key), strconv.FormatInt(at.UnixNano(), 10), ttl); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func redisKey(key string) string { return "cooldown:" + key }
