package reputation

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/eventwish/fraudguard/pkg/domain/reputation"
)

// lockTable serializes updates per entity. Keys hash onto a fixed set of
// shards; multi-key callers take shards in ascending index order.
type lockTable struct {
	shards []sync.Mutex
}

func newLockTable(n int) *lockTable {
	if n <= 0 {
		n = 256
	}
	return &lockTable{shards: make([]sync.Mutex, n)}
}

func (t *lockTable) shard(key reputation.Key) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return int(h.Sum32() % uint32(len(t.shards)))
}

func (t *lockTable) lock(keys []reputation.Key) func() {
	idx := make([]int, 0, len(keys))
	seen := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		i := t.shard(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		t.shards[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			t.shards[idx[j]].Unlock()
		}
	}
}
