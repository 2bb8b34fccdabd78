package velocity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "velocity:"

type RedisCounterOpts struct {
	UuidProvider func() uuid.UUID
}

type redisCounter struct {
	redis        *redis.Client
	uuidProvider func() uuid.UUID
}

// NewRedisCounter keeps windows in redis sorted sets scored by unix milliseconds.
func NewRedisCounter(rdb *redis.Client, opts *RedisCounterOpts) Counter {
	uuidProvider := uuid.New
	if opts != nil && opts.UuidProvider != nil {
		uuidProvider = opts.UuidProvider
	}
	return &redisCounter{
		redis:        rdb,
		uuidProvider: uuidProvider,
	}
}

func (r *redisCounter) Record(ctx context.Context, key string, at time.Time, window time.Duration) (Observation, error) {
	redisKey := keyPrefix + key
	now := at.UnixMilli()
	nowStr := strconv.FormatInt(now, 10)
	windowStart := strconv.FormatInt(at.Add(-window).UnixMilli(), 10)

	pipe := r.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", windowStart)
	prev := pipe.ZRevRangeByScoreWithScores(ctx, redisKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   nowStr,
		Count: RecentIntervals,
	})
	pipe.ZAdd(ctx, redisKey, &redis.Z{
		Score:  float64(now),
		Member: nowStr + ":" + r.uuidProvider().String(),
	})
	count := pipe.ZCount(ctx, redisKey, "("+windowStart, nowStr)
	pipe.Expire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Observation{}, fmt.Errorf("failed to execute velocity pipeline: %w", err)
	}

	obs := Observation{Count: count.Val()}
	if latest := prev.Val(); len(latest) > 0 {
		obs.HasPrevious = true
		obs.SincePrevious = time.Duration(now-int64(latest[0].Score)) * time.Millisecond
		prior := make([]int64, len(latest))
		for i, z := range latest {
			prior[len(latest)-1-i] = int64(z.Score)
		}
		obs.Intervals = intervalsFrom(prior, now)
	}
	return obs, nil
}

func (r *redisCounter) Count(ctx context.Context, key string, at time.Time, window time.Duration) (int64, error) {
	n, err := r.redis.ZCount(ctx, keyPrefix+key,
		"("+strconv.FormatInt(at.Add(-window).UnixMilli(), 10),
		strconv.FormatInt(at.UnixMilli(), 10),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count velocity window: %w", err)
	}
	return n, nil
}
