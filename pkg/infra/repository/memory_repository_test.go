package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/eventwish/fraudguard/pkg/infra/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(at time.Time, typ event.Type, fraud bool) *event.AnalyticsEvent {
	return &event.AnalyticsEvent{
		ID:           uuid.New(),
		AdID:         "ad-1",
		EventType:    typ,
		UserID:       "user-1",
		IP:           "203.0.113.1",
		Timestamp:    at,
		IsFraudulent: fraud,
		Reasons:      []string{"velocity"},
	}
}

func TestMemoryEventRepository_QueryByTimeRange(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryEventRepository()
	base := time.Unix(1740730536, 0)

	require.NoError(t, repo.Append(ctx, newEvent(base.Add(2*time.Minute), event.Click, true)))
	require.NoError(t, repo.Append(ctx, newEvent(base, event.Impression, false)))
	require.NoError(t, repo.Append(ctx, newEvent(base.Add(time.Minute), event.Click, false)))
	require.NoError(t, repo.Append(ctx, newEvent(base.Add(time.Hour), event.Click, true)))

	all, err := repo.QueryByTimeRange(ctx, base, base.Add(10*time.Minute), event.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.Equal(base))
	assert.True(t, all[2].Timestamp.Equal(base.Add(2*time.Minute)))

	clicks, err := repo.QueryByTimeRange(ctx, base, base.Add(10*time.Minute), event.Filter{EventTypes: []event.Type{event.Click}})
	require.NoError(t, err)
	assert.Len(t, clicks, 2)

	fraud, err := repo.QueryByTimeRange(ctx, base, base.Add(2*time.Hour), event.Filter{OnlyFraud: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, fraud, 1)
	assert.True(t, fraud[0].Timestamp.Equal(base.Add(2*time.Minute)))

	empty, err := repo.QueryByTimeRange(ctx, base.Add(3*time.Hour), base.Add(4*time.Hour), event.Filter{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryEventRepository_Idempotency(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryEventRepository()
	key := "req-1"

	first := newEvent(time.Unix(1740730536, 0), event.Click, false)
	first.IdempotencyKey = &key
	require.NoError(t, repo.Append(ctx, first))

	dup := newEvent(time.Unix(1740730537, 0), event.Click, false)
	dup.IdempotencyKey = &key
	err := repo.Append(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyProcessed)

	found, err := repo.FindByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := repo.FindByIdempotencyKey(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryReputationRepository_TransactIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryReputationRepository()
	user := reputation.Key{Type: reputation.User, ID: "u"}
	device := reputation.Key{Type: reputation.Device, ID: "d"}

	err := repo.Transact(ctx, []reputation.Key{user, device}, func(current map[reputation.Key]*reputation.Entity) error {
		assert.Empty(t, current)
		for _, k := range []reputation.Key{user, device} {
			e := reputation.NewEntity(k, 50)
			e.ActivityCount = 1
			current[k] = &e
		}
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repo.Transact(ctx, []reputation.Key{user, device}, func(current map[reputation.Key]*reputation.Entity) error {
		current[user].ReputationScore = 1
		current[device].ReputationScore = 1
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.FindMany(ctx, []reputation.Key{user, device})
	require.NoError(t, err)
	assert.Equal(t, 50.0, got[user].ReputationScore)
	assert.Equal(t, 50.0, got[device].ReputationScore)
	assert.False(t, got[user].CreatedAt.IsZero())

	missing, err := repo.Find(ctx, reputation.Key{Type: reputation.IP, ID: "x"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryReputationRepository_ConcurrentTransact(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryReputationRepository()
	key := reputation.Key{Type: reputation.Device, ID: "d"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.Transact(ctx, []reputation.Key{key}, func(current map[reputation.Key]*reputation.Entity) error {
				e, ok := current[key]
				if !ok {
					n := reputation.NewEntity(key, 50)
					e = &n
					current[key] = e
				}
				e.ActivityCount++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := repo.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.ActivityCount)
}

func TestMemoryEventRepository_Summarize(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryEventRepository()
	base := time.Unix(1740730536, 0)

	fraud := newEvent(base, event.Click, true)
	fraud.Revenue = decimal.RequireFromString("0.75")
	clean := newEvent(base.Add(time.Minute), event.Click, false)
	clean.Revenue = decimal.RequireFromString("2.00")
	failed := newEvent(base.Add(2*time.Minute), event.Click, false)
	failed.FraudScore = event.FailedScore
	late := newEvent(base.Add(time.Hour), event.Click, true)
	for _, evt := range []*event.AnalyticsEvent{fraud, clean, failed, late} {
		require.NoError(t, repo.Append(ctx, evt))
	}

	sum, err := repo.Summarize(ctx, base, base.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Fraudulent)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, "0.75", sum.Revenue.String())

	empty, err := repo.Summarize(ctx, base.Add(-time.Hour), base)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.True(t, empty.Revenue.IsZero())
}
