package countstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCountPrefix    = "warden/count/"
	redisDistinctPrefix = "warden/distinct/"
)

// Retention for bucketed counters. Each bucket outlives its period so a status report taken at the boundary still sees it. Totals never expire.
var periodTTL = map[string]time.Duration{
	PeriodHour: 2 * time.Hour,
	PeriodDay:  48 * time.Hour,
}

var countPeriods = []string{PeriodHour, PeriodDay, PeriodTotal}

// Count store backed by redis, sharing the daemon's client. Distinct counts use HyperLogLog, so they are approximate.
type RedisCountStore struct {
	Client *redis.Client
}

var _ CountStore = (*RedisCountStore)(nil)
var _ ActionCounter = (*RedisCountStore)(nil)

func NewRedisCountStore(rdb *redis.Client) *RedisCountStore {
	return &RedisCountStore{Client: rdb}
}

func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	c, err := s.Client.Get(ctx, redisCountPrefix+periodBucket(name, val, period)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return c, nil
}

func (s *RedisCountStore) GetCountDistinct(ctx context.Context, name, val, period string) (int, error) {
	c, err := s.Client.PFCount(ctx, redisDistinctPrefix+periodBucket(name, val, period)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return int(c), nil
}

func (s *RedisCountStore) Increment(ctx context.Context, name, val string) error {
	pipe := s.Client.Pipeline()
	s.queueIncrement(ctx, pipe, name, val)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string) error {
	pipe := s.Client.Pipeline()
	s.queueDistinct(ctx, pipe, name, bucket, val)
	_, err := pipe.Exec(ctx)
	return err
}

// All three tallies for one action in a single MULTI, so a status report never sees the per-sender count without the all-senders one.
func (s *RedisCountStore) IncrementAction(ctx context.Context, name, sender string) error {
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueIncrement(ctx, pipe, name, sender)
		s.queueIncrement(ctx, pipe, name, ValueAll)
		s.queueDistinct(ctx, pipe, name, ValueAll, sender)
		return nil
	})
	return err
}

func (s *RedisCountStore) queueIncrement(ctx context.Context, pipe redis.Pipeliner, name, val string) {
	for _, period := range countPeriods {
		key := redisCountPrefix + periodBucket(name, val, period)
		pipe.Incr(ctx, key)
		if ttl, ok := periodTTL[period]; ok {
			pipe.Expire(ctx, key, ttl)
		}
	}
}

func (s *RedisCountStore) queueDistinct(ctx context.Context, pipe redis.Pipeliner, name, bucket, val string) {
	for _, period := range countPeriods {
		key := redisDistinctPrefix + periodBucket(name, bucket, period)
		pipe.PFAdd(ctx, key, val)
		if ttl, ok := periodTTL[period]; ok {
			pipe.Expire(ctx, key, ttl)
		}
	}
}
