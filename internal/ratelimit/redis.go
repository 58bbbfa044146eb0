package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a CounterStore backed by Redis sorted sets, for deployments
// running more than one process: all instances share one set of counters so
// the 5/10 limits hold globally.
//
// Each key maps to a sorted set whose members are scored by their unix-nano
// timestamp; counting is a ZCOUNT over the window and recording is a ZADD
// with a key TTL slightly beyond the window. Purge is a no-op because Redis
// expires the keys server-side.
type RedisStore struct {
	client *redis.Client
	prefix string

	// opTimeout bounds each Redis round trip so a slow Redis degrades to
	// fail-open instead of stalling request admission.
	opTimeout time.Duration
}

// NewRedisStore returns a store using client, namespacing keys with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		opTimeout: 250 * time.Millisecond,
	}
}

func (s *RedisStore) key(key string) string { return s.prefix + ":" + key }

// Record appends one event for key at t.
func (s *RedisStore) Record(key string, t time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	k := s.key(key)
	member := strconv.FormatInt(t.UnixNano(), 10)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(t.UnixNano()), Member: member})
	pipe.Expire(ctx, k, DefaultWindow+10*time.Second)
	_, err := pipe.Exec(ctx)
	return err
}

// CountInWindow counts events for key within the trailing window ending at now.
func (s *RedisStore) CountInWindow(key string, now time.Time, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	min := strconv.FormatInt(now.Add(-window).UnixNano()+1, 10)
	max := strconv.FormatInt(now.UnixNano(), 10)
	n, err := s.client.ZCount(ctx, s.key(key), min, max).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Purge is a no-op: keys carry a TTL and old members fall out of the counted
// range on their own.
func (s *RedisStore) Purge(time.Time) {}
