package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eventwish/fraudguard/pkg/infra/cache/event"
)

// Namespace is a key space isolated from every other namespace of the same
// Client. Keys are stored as "<name>:<key>".
type Namespace interface {
	Name() string
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value for ttl; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
	// Keys lists the live keys of this namespace without the prefix, sorted.
	Keys(ctx context.Context) ([]string, error)
	// Flush removes every key of this namespace and reports how many were live.
	Flush(ctx context.Context) (int, error)
	Stats() Stats
}

type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	HitRate float64 `json:"hit_rate"`
}

type namespace struct {
	name   string
	prefix string
	client *client

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

func (n *namespace) Name() string {
	return n.name
}

func (n *namespace) key(k string) string {
	return n.prefix + k
}

func (n *namespace) Get(ctx context.Context, key string) (string, error) {
	full := n.key(key)
	if near := n.client.near; near != nil {
		if v, ok := near.Get(full); ok {
			n.hits.Add(1)
			return v, nil
		}
	}
	v, err := n.client.backend.get(ctx, full)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			n.misses.Add(1)
		}
		return "", err
	}
	n.hits.Add(1)
	if near := n.client.near; near != nil {
		near.Set(full, v, n.client.nearTTL)
	}
	return v, nil
}

func (n *namespace) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	full := n.key(key)
	if err := n.client.backend.set(ctx, full, value, ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", full, err)
	}
	n.sets.Add(1)
	if near := n.client.near; near != nil {
		nearTTL := n.client.nearTTL
		if ttl > 0 && ttl < nearTTL {
			nearTTL = ttl
		}
		near.Set(full, value, nearTTL)
		n.client.announce(ctx, event.InvalidateKeyEvent{Origin: n.client.instanceID, Namespace: n.name, Key: key})
	}
	return nil
}

func (n *namespace) Has(ctx context.Context, key string) (bool, error) {
	full := n.key(key)
	if near := n.client.near; near != nil {
		if _, ok := near.Get(full); ok {
			return true, nil
		}
	}
	return n.client.backend.exists(ctx, full)
}

func (n *namespace) Del(ctx context.Context, key string) error {
	full := n.key(key)
	if err := n.client.backend.del(ctx, full); err != nil {
		return fmt.Errorf("cache del %s: %w", full, err)
	}
	n.deletes.Add(1)
	if near := n.client.near; near != nil {
		near.Delete(full)
		n.client.announce(ctx, event.InvalidateKeyEvent{Origin: n.client.instanceID, Namespace: n.name, Key: key})
	}
	return nil
}

func (n *namespace) Keys(ctx context.Context) ([]string, error) {
	full, err := n.client.backend.keys(ctx, n.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(full))
	for _, k := range full {
		out = append(out, strings.TrimPrefix(k, n.prefix))
	}
	return sortedKeys(out), nil
}

func (n *namespace) Flush(ctx context.Context) (int, error) {
	removed, err := n.client.backend.flush(ctx, n.prefix)
	if err != nil {
		return 0, fmt.Errorf("cache flush %s: %w", n.name, err)
	}
	n.deletes.Add(int64(removed))
	if near := n.client.near; near != nil {
		near.DeletePrefix(n.prefix)
		n.client.announce(ctx, event.FlushNamespaceEvent{Origin: n.client.instanceID, Namespace: n.name})
	}
	return removed, nil
}

func (n *namespace) Stats() Stats {
	s := Stats{
		Hits:    n.hits.Load(),
		Misses:  n.misses.Load(),
		Sets:    n.sets.Load(),
		Deletes: n.deletes.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// GetJSON decodes the value stored under key. found is false on a miss.
func GetJSON[T any](ctx context.Context, ns Namespace, key string) (value T, found bool, err error) {
	raw, err := ns.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return value, false, fmt.Errorf("failed to unmarshal cached %s:%s: %w", ns.Name(), key, err)
	}
	return value, true, nil
}

func SetJSON(ctx context.Context, ns Namespace, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s:%s: %w", ns.Name(), key, err)
	}
	return ns.Set(ctx, key, string(b), ttl)
}
