package velocity_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/eventwish/fraudguard/pkg/infra/velocity"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounter_CountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	c := velocity.NewMemoryCounter()
	base := time.Unix(1740730536, 0)

	obs, err := c.Record(ctx, "fp", base, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), obs.Count)
	assert.False(t, obs.HasPrevious)

	obs, err = c.Record(ctx, "fp", base.Add(200*time.Millisecond), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), obs.Count)
	assert.True(t, obs.HasPrevious)
	assert.Equal(t, 200*time.Millisecond, obs.SincePrevious)

	obs, err = c.Record(ctx, "fp", base.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), obs.Count)
	assert.False(t, obs.HasPrevious)
}

func TestMemoryCounter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := velocity.NewMemoryCounter()
	base := time.Unix(1740730536, 0)

	_, err := c.Record(ctx, "a", base, time.Minute)
	require.NoError(t, err)
	obs, err := c.Record(ctx, "b", base, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), obs.Count)
}

func TestMemoryCounter_OutOfOrderEvent(t *testing.T) {
	ctx := context.Background()
	c := velocity.NewMemoryCounter()
	base := time.Unix(1740730536, 0)

	_, err := c.Record(ctx, "fp", base.Add(time.Second), time.Minute)
	require.NoError(t, err)
	obs, err := c.Record(ctx, "fp", base, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), obs.Count)
	assert.False(t, obs.HasPrevious)
}

func TestMemoryCounter_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := velocity.NewMemoryCounter()
	base := time.Unix(1740730536, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.Record(ctx, "fp", base.Add(time.Duration(i)*time.Millisecond), time.Minute)
		}(i)
	}
	wg.Wait()

	obs, err := c.Record(ctx, "fp", base.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(101), obs.Count)
}

func TestRedisCounter_Record(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(false)

	fixedTime := time.Unix(1740730536, 0)
	window := time.Minute
	key := "velocity:device:abc"
	now := strconv.FormatInt(fixedTime.UnixMilli(), 10)
	windowStart := strconv.FormatInt(fixedTime.Add(-window).UnixMilli(), 10)
	uid := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	mock.ExpectTxPipeline()
	mock.ExpectZRemRangeByScore(key, "0", windowStart).SetVal(0)
	mock.ExpectZRevRangeByScoreWithScores(key, &redis.ZRangeBy{Min: "-inf", Max: now, Count: velocity.RecentIntervals}).
		SetVal([]redis.Z{
			{Score: float64(fixedTime.UnixMilli() - 300), Member: "prev"},
			{Score: float64(fixedTime.UnixMilli() - 1000), Member: "older"},
		})
	mock.ExpectZAdd(key, &redis.Z{Score: float64(fixedTime.UnixMilli()), Member: now + ":" + uid.String()}).SetVal(1)
	mock.ExpectZCount(key, "("+windowStart, now).SetVal(7)
	mock.ExpectExpire(key, window).SetVal(true)
	mock.ExpectTxPipelineExec()

	c := velocity.NewRedisCounter(rdb, &velocity.RedisCounterOpts{
		UuidProvider: func() uuid.UUID { return uid },
	})

	obs, err := c.Record(context.Background(), "device:abc", fixedTime, window)
	require.NoError(t, err)
	assert.Equal(t, int64(7), obs.Count)
	assert.True(t, obs.HasPrevious)
	assert.Equal(t, 300*time.Millisecond, obs.SincePrevious)
	assert.Equal(t, []time.Duration{700 * time.Millisecond, 300 * time.Millisecond}, obs.Intervals)
}

func TestRedisCounter_Count(t *testing.T) {
	rdb, mock := redismock.NewClientMock()

	fixedTime := time.Unix(1740730536, 0)
	window := 24 * time.Hour
	key := "velocity:imp:user-1:ad-1"
	now := strconv.FormatInt(fixedTime.UnixMilli(), 10)
	windowStart := strconv.FormatInt(fixedTime.Add(-window).UnixMilli(), 10)

	mock.ExpectZCount(key, "("+windowStart, now).SetVal(4)

	c := velocity.NewRedisCounter(rdb, nil)
	n, err := c.Count(context.Background(), "imp:user-1:ad-1", fixedTime, window)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryCounter_RecentIntervals(t *testing.T) {
	ctx := context.Background()
	c := velocity.NewMemoryCounter()
	base := time.Unix(1740730536, 0)

	for _, offset := range []time.Duration{0, 300 * time.Millisecond, 500 * time.Millisecond} {
		_, err := c.Record(ctx, "fp", base.Add(offset), time.Minute)
		require.NoError(t, err)
	}
	obs, err := c.Record(ctx, "fp", base.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond}, obs.Intervals)

	for i := 0; i < 2*velocity.RecentIntervals; i++ {
		obs, err = c.Record(ctx, "busy", base.Add(time.Duration(i)*100*time.Millisecond), time.Minute)
		require.NoError(t, err)
	}
	assert.Len(t, obs.Intervals, velocity.RecentIntervals)
}

func TestMemoryCounter_CountDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	c := velocity.NewMemoryCounter()
	base := time.Unix(1740730536, 0)

	n, err := c.Count(ctx, "imp", base, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		_, err = c.Record(ctx, "imp", base.Add(time.Duration(i)*time.Minute), time.Hour)
		require.NoError(t, err)
	}
	n, err = c.Count(ctx, "imp", base.Add(5*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = c.Count(ctx, "imp", base.Add(time.Hour+30*time.Second), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
