package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/eventwish/fraudguard/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

// Outcome is the result of scoring one event, applied to every entity it touched.
type Outcome struct {
	Keys          []reputation.Key
	Fingerprint   string
	WasFraudulent bool
	FraudScore    int
	At            time.Time
}

//go:generate mockery --name=Store --dir=. --output=./mocks --filename=store_mock.go --case=underscore --with-expecter
type Store interface {
	// Get returns the decayed entity, or a neutral default that is not persisted.
	Get(ctx context.Context, key reputation.Key) (reputation.Entity, error)
	GetMany(ctx context.Context, keys []reputation.Key) (map[reputation.Key]reputation.Entity, error)
	// Peek returns decayed views of existing entities only.
	Peek(ctx context.Context, keys []reputation.Key) (map[reputation.Key]reputation.Entity, error)
	Update(ctx context.Context, key reputation.Key, wasFraudulent bool, fraudScore int, at time.Time) (reputation.Entity, error)
	// Apply updates every key of the outcome atomically.
	Apply(ctx context.Context, outcome Outcome) (map[reputation.Key]reputation.Entity, error)
	IsSuspicious(ctx context.Context, key reputation.Key, threshold float64) (bool, error)
}

type Config struct {
	Policy       reputation.Policy
	MaxRetries   int
	RetryBackoff time.Duration
	CacheTTL     time.Duration
	Shards       int
}

func DefaultConfig() Config {
	return Config{
		Policy:       reputation.DefaultPolicy(),
		MaxRetries:   3,
		RetryBackoff: 10 * time.Millisecond,
		CacheTTL:     5 * time.Minute,
		Shards:       256,
	}
}

type store struct {
	cfg    Config
	repo   reputation.Repository
	cache  cache.Namespace
	locks  *lockTable
	now    func() time.Time
	logger *logrus.Logger
}

type Option func(*store)

func WithClock(now func() time.Time) Option {
	return func(s *store) { s.now = now }
}

// WithCache enables the read-through cache. Without it every read hits the repository.
func WithCache(ns cache.Namespace) Option {
	return func(s *store) { s.cache = ns }
}

func NewStore(cfg Config, repo reputation.Repository, logger *logrus.Logger, opts ...Option) Store {
	s := &store{
		cfg:    cfg,
		repo:   repo,
		locks:  newLockTable(cfg.Shards),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *store) Get(ctx context.Context, key reputation.Key) (reputation.Entity, error) {
	e, found, err := s.load(ctx, key)
	if err != nil {
		return reputation.Entity{}, err
	}
	if !found {
		return reputation.NewEntity(key, s.cfg.Policy.NeutralScore), nil
	}
	return s.cfg.Policy.Decay(e, s.now()), nil
}

func (s *store) GetMany(ctx context.Context, keys []reputation.Key) (map[reputation.Key]reputation.Entity, error) {
	out, err := s.Peek(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			out[k] = reputation.NewEntity(k, s.cfg.Policy.NeutralScore)
		}
	}
	return out, nil
}

func (s *store) Peek(ctx context.Context, keys []reputation.Key) (map[reputation.Key]reputation.Entity, error) {
	now := s.now()
	out := make(map[reputation.Key]reputation.Entity, len(keys))
	var missing []reputation.Key
	for _, k := range dedupe(keys) {
		if e, ok := s.cached(ctx, k); ok {
			out[k] = s.cfg.Policy.Decay(e, now)
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return out, nil
	}
	unlock := s.fillLock(missing)
	defer unlock()
	loaded, err := s.repo.FindMany(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to load reputations: %w", err)
	}
	for k, e := range loaded {
		s.remember(ctx, e)
		out[k] = s.cfg.Policy.Decay(e, now)
	}
	return out, nil
}

func (s *store) Update(
	ctx context.Context,
	key reputation.Key,
	wasFraudulent bool,
	fraudScore int,
	at time.Time,
) (reputation.Entity, error) {
	res, err := s.Apply(ctx, Outcome{
		Keys:          []reputation.Key{key},
		WasFraudulent: wasFraudulent,
		FraudScore:    fraudScore,
		At:            at,
	})
	if err != nil {
		return reputation.Entity{}, err
	}
	return res[key], nil
}

func (s *store) Apply(ctx context.Context, outcome Outcome) (map[reputation.Key]reputation.Entity, error) {
	keys := dedupe(outcome.Keys)
	if len(keys) == 0 {
		return map[reputation.Key]reputation.Entity{}, nil
	}

	unlock := s.locks.lock(keys)
	defer unlock()

	var (
		result map[reputation.Key]reputation.Entity
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = s.transact(ctx, keys, outcome)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrReputationContention) || attempt >= s.cfg.MaxRetries {
			if errors.Is(err, domain.ErrReputationContention) {
				return nil, fmt.Errorf("%w: reputation contention after %d attempts: %w", domain.ErrScoringFailed, attempt+1, err)
			}
			return nil, fmt.Errorf("failed to apply reputation outcome: %w", err)
		}
		prometheus.ReputationRetriesTotal.Inc()
		s.logger.WithError(err).WithField("attempt", attempt+1).Warn("reputation update contended, retrying")
		if werr := wait(ctx, s.cfg.RetryBackoff*time.Duration(attempt+1)); werr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrScoringFailed, werr)
		}
	}

	for _, e := range result {
		s.remember(ctx, e)
	}
	return result, nil
}

func (s *store) transact(ctx context.Context, keys []reputation.Key, outcome Outcome) (map[reputation.Key]reputation.Entity, error) {
	result := make(map[reputation.Key]reputation.Entity, len(keys))
	err := s.repo.Transact(ctx, keys, func(current map[reputation.Key]*reputation.Entity) error {
		for _, k := range keys {
			e, ok := current[k]
			if !ok {
				fresh := reputation.NewEntity(k, s.cfg.Policy.NeutralScore)
				fresh.CreatedAt = s.now()
				e = &fresh
				current[k] = e
			}
			updated := s.cfg.Policy.Apply(*e, outcome.WasFraudulent, outcome.FraudScore, outcome.At)
			if k.Type == reputation.Device && outcome.Fingerprint != "" {
				updated.LastFingerprint = outcome.Fingerprint
			}
			*e = updated
			result[k] = updated
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *store) IsSuspicious(ctx context.Context, key reputation.Key, threshold float64) (bool, error) {
	e, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return e.ReputationScore < threshold, nil
}

func (s *store) load(ctx context.Context, key reputation.Key) (reputation.Entity, bool, error) {
	if e, ok := s.cached(ctx, key); ok {
		return e, true, nil
	}
	unlock := s.fillLock([]reputation.Key{key})
	defer unlock()
	e, err := s.repo.Find(ctx, key)
	if err != nil {
		return reputation.Entity{}, false, fmt.Errorf("failed to load reputation %s: %w", key, err)
	}
	if e == nil {
		return reputation.Entity{}, false, nil
	}
	s.remember(ctx, *e)
	return *e, true, nil
}

// fillLock serializes a read-through with Apply on the same keys, so a
// repository read that started before a commit cannot overwrite the cached
// result of that commit.
func (s *store) fillLock(keys []reputation.Key) func() {
	if s.cache == nil {
		return func() {}
	}
	return s.locks.lock(keys)
}

func (s *store) cached(ctx context.Context, key reputation.Key) (reputation.Entity, bool) {
	if s.cache == nil {
		return reputation.Entity{}, false
	}
	e, found, err := cache.GetJSON[reputation.Entity](ctx, s.cache, key.String())
	if err != nil {
		s.logger.WithError(err).WithField("key", key.String()).Warn("reputation cache read failed")
		return reputation.Entity{}, false
	}
	return e, found
}

func (s *store) remember(ctx context.Context, e reputation.Entity) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, e.Key().String(), e, s.cfg.CacheTTL); err != nil {
		s.logger.WithError(err).WithField("key", e.Key().String()).Warn("reputation cache write failed")
	}
}

func dedupe(keys []reputation.Key) []reputation.Key {
	seen := make(map[reputation.Key]struct{}, len(keys))
	out := make([]reputation.Key, 0, len(keys))
	for _, k := range keys {
		if k.ID == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
