package velocity

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const defaultShards = 64

type shard struct {
	mu     sync.Mutex
	events map[string][]int64
}

type memoryCounter struct {
	shards []*shard
}

// NewMemoryCounter keeps per-key windows in process memory.
func NewMemoryCounter() Counter {
	c := &memoryCounter{shards: make([]*shard, defaultShards)}
	for i := range c.shards {
		c.shards[i] = &shard{events: make(map[string][]int64)}
	}
	return c
}

func (c *memoryCounter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

func (c *memoryCounter) Record(_ context.Context, key string, at time.Time, window time.Duration) (Observation, error) {
	s := c.shardFor(key)
	now := at.UnixMilli()
	windowStart := at.Add(-window).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.events[key]
	first := sort.Search(len(ts), func(i int) bool { return ts[i] > windowStart })
	ts = ts[first:]

	var obs Observation
	pos := sort.Search(len(ts), func(i int) bool { return ts[i] > now })
	if pos > 0 {
		obs.HasPrevious = true
		obs.SincePrevious = time.Duration(now-ts[pos-1]) * time.Millisecond
		obs.Intervals = intervalsFrom(ts[max(0, pos-RecentIntervals):pos], now)
	}

	ts = append(ts, 0)
	copy(ts[pos+1:], ts[pos:])
	ts[pos] = now

	upper := sort.Search(len(ts), func(i int) bool { return ts[i] > now })
	obs.Count = int64(upper)

	s.events[key] = ts
	return obs, nil
}

func (c *memoryCounter) Count(_ context.Context, key string, at time.Time, window time.Duration) (int64, error) {
	s := c.shardFor(key)
	now := at.UnixMilli()
	windowStart := at.Add(-window).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.events[key]
	first := sort.Search(len(ts), func(i int) bool { return ts[i] > windowStart })
	upper := sort.Search(len(ts), func(i int) bool { return ts[i] > now })
	if upper < first {
		return 0, nil
	}
	return int64(upper - first), nil
}
