package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eventwish/fraudguard/pkg/infra/cache/event"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ReputationNamespace  = "reputation"
	DashboardNamespace   = "dashboard"
	IPIntelNamespace     = "ipintel"
	IdempotencyNamespace = "idempotency"

	redisOpTimeout = 2 * time.Second
	scanBatch      = 100
)

var ErrCacheMiss = errors.New("cache miss")

//go:generate mockery --name=Client --dir=. --output=./mocks --filename=client_mock.go --case=underscore --with-expecter
type Client interface {
	Namespace(name string) Namespace
	Stats() map[string]Stats
	RedisClient() *redis.Client
	InstanceID() string
	// Evict and EvictAll drop entries from the process-local tier only.
	Evict(namespace, key string)
	EvictAll(namespace string)
	Close() error
}

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TLS      bool
	// NearTTL enables a process-local tier in front of redis. Zero disables it.
	NearTTL time.Duration
}

type client struct {
	backend    backend
	near       *TTLMap
	nearTTL    time.Duration
	publisher  EventPublisher
	instanceID string
	namespaces sync.Map
	logger     *logrus.Logger
}

// NewClient connects to redis and returns a Client whose namespaces live there.
func NewClient(config Config, logger *logrus.Logger) (Client, error) {
	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	}
	if config.TLS {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: true, // #nosec G402
		}
	}
	redisClient := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithFields(logrus.Fields{
			"host":  config.Host,
			"port":  config.Port,
			"error": err.Error(),
		}).Error("failed to connect to redis")
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host": config.Host,
		"port": config.Port,
	}).Info("redis connected successfully")

	return NewRedisClient(redisClient, config.NearTTL, logger), nil
}

// NewRedisClient wraps an existing redis connection.
func NewRedisClient(rdb *redis.Client, nearTTL time.Duration, logger *logrus.Logger) Client {
	c := &client{
		backend:    &redisBackend{rdb: rdb},
		nearTTL:    nearTTL,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
	if nearTTL > 0 {
		c.near = NewTTLMap()
		c.publisher = NewRedisEventPublisher(rdb, InvalidationChannel)
	}
	return c
}

// NewMemoryClient returns a process-local Client.
func NewMemoryClient(logger *logrus.Logger) Client {
	return NewMemoryClientWithMap(NewTTLMap(), logger)
}

// NewMemoryClientWithMap is NewMemoryClient over a caller-provided map.
func NewMemoryClientWithMap(m *TTLMap, logger *logrus.Logger) Client {
	return &client{
		backend:    &memoryBackend{data: m},
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

func (c *client) Namespace(name string) Namespace {
	if ns, ok := c.namespaces.Load(name); ok {
		return ns.(*namespace)
	}
	ns, _ := c.namespaces.LoadOrStore(name, &namespace{name: name, prefix: namespacePrefix(name), client: c})
	return ns.(*namespace)
}

func (c *client) Stats() map[string]Stats {
	out := make(map[string]Stats)
	c.namespaces.Range(func(k, v any) bool {
		out[k.(string)] = v.(*namespace).Stats()
		return true
	})
	return out
}

func (c *client) RedisClient() *redis.Client {
	if rb, ok := c.backend.(*redisBackend); ok {
		return rb.rdb
	}
	return nil
}

func (c *client) InstanceID() string {
	return c.instanceID
}

func (c *client) Evict(ns, key string) {
	if c.near != nil {
		c.near.Delete(namespacePrefix(ns) + key)
	}
}

func (c *client) EvictAll(ns string) {
	if c.near != nil {
		c.near.DeletePrefix(namespacePrefix(ns))
	}
}

func (c *client) Close() error {
	if rdb := c.RedisClient(); rdb != nil {
		return rdb.Close()
	}
	return nil
}

func (c *client) announce(ctx context.Context, ev event.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.logger.WithError(err).WithField("event", ev.Type()).Warn("failed to publish cache invalidation")
	}
}

// backend stores fully qualified keys.
type backend interface {
	get(ctx context.Context, key string) (string, error)
	set(ctx context.Context, key, value string, ttl time.Duration) error
	exists(ctx context.Context, key string) (bool, error)
	del(ctx context.Context, key string) error
	keys(ctx context.Context, prefix string) ([]string, error)
	flush(ctx context.Context, prefix string) (int, error)
}

type memoryBackend struct {
	data *TTLMap
}

func (b *memoryBackend) get(_ context.Context, key string) (string, error) {
	v, ok := b.data.Get(key)
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (b *memoryBackend) set(_ context.Context, key, value string, ttl time.Duration) error {
	b.data.Set(key, value, ttl)
	return nil
}

func (b *memoryBackend) exists(_ context.Context, key string) (bool, error) {
	_, ok := b.data.Get(key)
	return ok, nil
}

func (b *memoryBackend) del(_ context.Context, key string) error {
	b.data.Delete(key)
	return nil
}

func (b *memoryBackend) keys(_ context.Context, prefix string) ([]string, error) {
	return b.data.Keys(prefix), nil
}

func (b *memoryBackend) flush(_ context.Context, prefix string) (int, error) {
	return b.data.DeletePrefix(prefix), nil
}

type redisBackend struct {
	rdb *redis.Client
}

func (b *redisBackend) get(ctx context.Context, key string) (string, error) {
	v, err := b.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (b *redisBackend) set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

func (b *redisBackend) exists(ctx context.Context, key string) (bool, error) {
	n, err := b.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *redisBackend) del(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, key).Err()
}

func (b *redisBackend) keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := b.rdb.Scan(ctx, cursor, globEscaper.Replace(prefix)+"*", scanBatch).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (b *redisBackend) flush(ctx context.Context, prefix string) (int, error) {
	keys, err := b.keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := b.rdb.Del(ctx, keys...).Result()
	return int(n), err
}

var (
	nameEscaper = strings.NewReplacer("%", "%25", ":", "%3A")
	globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
)

// namespacePrefix escapes the separator inside name so that no namespace's
// prefix is a prefix of another's.
func namespacePrefix(name string) string {
	return nameEscaper.Replace(name) + ":"
}

func sortedKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}
