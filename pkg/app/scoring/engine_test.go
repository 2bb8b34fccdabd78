package scoring_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	appReputation "github.com/eventwish/fraudguard/pkg/app/reputation"
	"github.com/eventwish/fraudguard/pkg/app/scoring"
	"github.com/eventwish/fraudguard/pkg/domain/activity"
	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/eventwish/fraudguard/pkg/infra/ipintel"
	"github.com/eventwish/fraudguard/pkg/infra/repository"
	"github.com/eventwish/fraudguard/pkg/infra/velocity"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Unix(1740730536, 0)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

type fixture struct {
	engine scoring.Engine
	store  appReputation.Store
	events event.Repository
	clock  *manualClock
}

func newFixture(t *testing.T, cfg scoring.Config, repo reputation.Repository, opts ...scoring.Option) *fixture {
	t.Helper()
	logger := logrus.New()
	mc := &manualClock{now: base}
	clock := mc.Now
	if repo == nil {
		repo = repository.NewMemoryReputationRepository()
	}
	storeCfg := appReputation.DefaultConfig()
	storeCfg.RetryBackoff = time.Millisecond
	store := appReputation.NewStore(storeCfg, repo, logger, appReputation.WithClock(clock))
	events := repository.NewMemoryEventRepository()
	opts = append([]scoring.Option{scoring.WithClock(clock)}, opts...)
	return &fixture{
		engine: scoring.NewEngine(cfg, store, velocity.NewMemoryCounter(), events, logger, opts...),
		store:  store,
		events: events,
		clock:  mc,
	}
}

// process runs the event through the engine with the server clock at the
// event's own timestamp.
func (f *fixture) process(ctx context.Context, evt *event.AnalyticsEvent) (scoring.Decision, error) {
	f.clock.Set(evt.Timestamp)
	return f.engine.Process(ctx, evt)
}

func (f *fixture) stored(t *testing.T) []event.AnalyticsEvent {
	t.Helper()
	out, err := f.events.QueryByTimeRange(context.Background(), base.Add(-time.Hour), base.Add(time.Hour), event.Filter{})
	require.NoError(t, err)
	return out
}

func click(fp, ip string, at time.Time) *event.AnalyticsEvent {
	return &event.AnalyticsEvent{
		AdID:              "ad-1",
		EventType:         event.Click,
		IP:                ip,
		DeviceFingerprint: fp,
		Timestamp:         at,
	}
}

type intelByIP map[string]ipintel.Info

func (m intelByIP) Lookup(_ context.Context, ip string) (ipintel.Info, error) {
	return m[ip], nil
}

type collectingAlerter struct {
	mu      sync.Mutex
	records []activity.Record
}

func (a *collectingAlerter) Enqueue(rec activity.Record) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return true
}

type failingApplyRepo struct {
	reputation.Repository
}

func (failingApplyRepo) Transact(context.Context, []reputation.Key, reputation.TransactFunc) error {
	return domain.ErrReputationContention
}

func TestEngine_CleanTrafficIsAllowed(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		evt := click(fmt.Sprintf("fp-%d", i), fmt.Sprintf("198.51.100.%d", i), base.Add(time.Duration(i)*time.Minute))
		evt.UserID = fmt.Sprintf("user-%d", i)
		d, err := f.process(ctx, evt)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Less(t, d.FraudScore, 70)
		assert.Empty(t, d.Reasons)
	}

	assert.Len(t, f.stored(t), 10)
	e, err := f.store.Get(ctx, reputation.Key{Type: reputation.User, ID: "user-3"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, e.ReputationScore, 50.0)
	assert.Equal(t, int64(1), e.ActivityCount)
}

func TestEngine_ClickBurstIsFraudulent(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx := context.Background()

	var last scoring.Decision
	for i := 0; i < 50; i++ {
		d, err := f.process(ctx, click("bot-fp", "203.0.113.50", base.Add(time.Duration(i)*200*time.Millisecond)))
		require.NoError(t, err)
		last = d
	}

	assert.True(t, last.IsFraudulent)
	assert.False(t, last.Allowed)
	assert.GreaterOrEqual(t, last.FraudScore, 70)

	device, err := f.store.Get(ctx, reputation.Key{Type: reputation.Device, ID: "bot-fp"})
	require.NoError(t, err)
	policy := reputation.DefaultPolicy()
	assert.Less(t, device.ReputationScore, policy.NeutralScore-policy.Penalty(70))
	assert.Equal(t, int64(50), device.ActivityCount)
	assert.GreaterOrEqual(t, device.FraudCount, int64(11))

	events := f.stored(t)
	require.Len(t, events, 50)
	rec, ok := activity.Classify(&events[49], 30)
	require.True(t, ok)
	assert.Equal(t, activity.AbnormalTraffic, rec.Type)
	assert.Equal(t, reputation.IP, rec.EntityType)
}

func TestEngine_VelocityAboveCeilingRaisesScore(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx := context.Background()

	var decisions []scoring.Decision
	for i := 0; i < 21; i++ {
		d, err := f.process(ctx, click("fp-v", "198.51.100.1", base.Add(time.Duration(i)*2500*time.Millisecond)))
		require.NoError(t, err)
		decisions = append(decisions, d)
	}

	assert.Equal(t, decisions[0].FraudScore, decisions[19].FraudScore)
	assert.Greater(t, decisions[20].FraudScore, decisions[0].FraudScore)
	assert.Contains(t, decisions[20].Reasons, "velocity: 21 events within 1m0s")
}

func TestEngine_DatacenterIPRaisesScore(t *testing.T) {
	intel := intelByIP{"203.0.113.7": {IsDatacenter: true, Org: "Example Cloud"}}
	alerts := &collectingAlerter{}
	f := newFixture(t, scoring.DefaultConfig(), nil, scoring.WithIPIntel(intel), scoring.WithAlerter(alerts))
	ctx := context.Background()

	residential, err := f.process(ctx, click("fp-a", "198.51.100.7", base))
	require.NoError(t, err)
	datacenter, err := f.process(ctx, click("fp-b", "203.0.113.7", base))
	require.NoError(t, err)

	assert.Equal(t, residential.FraudScore+30, datacenter.FraudScore)
	assert.Contains(t, datacenter.Reasons, "network: datacenter")

	events := f.stored(t)
	require.Len(t, events, 2)
	for _, evt := range events {
		if evt.IP != "203.0.113.7" {
			continue
		}
		rec, ok := activity.Classify(&evt, 30)
		require.True(t, ok)
		assert.Equal(t, activity.DatacenterUsage, rec.Type)
		assert.Equal(t, "Example Cloud", evt.Metadata.Network.Org)
	}
	assert.Empty(t, alerts.records)
}

func TestEngine_HighSeverityRaisesAlert(t *testing.T) {
	intel := intelByIP{"203.0.113.9": {IsDatacenter: true, IsVPN: true, IsProxy: true}}
	alerts := &collectingAlerter{}
	f := newFixture(t, scoring.DefaultConfig(), nil, scoring.WithIPIntel(intel), scoring.WithAlerter(alerts))

	d, err := f.process(context.Background(), click("fp-c", "203.0.113.9", base))
	require.NoError(t, err)
	assert.Equal(t, 75, d.FraudScore)
	assert.True(t, d.IsFraudulent)

	require.Len(t, alerts.records, 1)
	assert.Equal(t, activity.DatacenterUsage, alerts.records[0].Type)
	assert.Equal(t, activity.High, alerts.records[0].Severity)
}

func TestEngine_IPLookupTimeoutDegrades(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := ipintel.ProviderFunc(func(context.Context, string) (ipintel.Info, error) {
		<-release
		return ipintel.Info{IsDatacenter: true}, nil
	})
	cfg := scoring.DefaultConfig()
	cfg.IPLookupTimeout = 50 * time.Millisecond
	f := newFixture(t, cfg, nil, scoring.WithIPIntel(stuck))

	start := time.Now()
	d, err := f.process(context.Background(), click("fp-d", "203.0.113.8", base))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, d.Allowed)
	assert.Contains(t, d.Reasons, "network: degraded")

	events := f.stored(t)
	require.Len(t, events, 1)
	assert.Equal(t, []string{event.SignalNetwork}, events[0].Metadata.DegradedSignals)
}

func TestEngine_IPLookupErrorDegrades(t *testing.T) {
	down := ipintel.ProviderFunc(func(context.Context, string) (ipintel.Info, error) {
		return ipintel.Info{}, domain.NewSignalError(event.SignalNetwork, errors.New("connection refused"))
	})
	f := newFixture(t, scoring.DefaultConfig(), nil, scoring.WithIPIntel(down))

	d, err := f.process(context.Background(), click("fp-e", "203.0.113.8", base))
	require.NoError(t, err)
	assert.Equal(t, []string{"network: degraded"}, d.Reasons)
}

func TestEngine_IdempotencyKeySkipsRescoring(t *testing.T) {
	ns := cache.NewMemoryClient(logrus.New()).Namespace(cache.IdempotencyNamespace)
	f := newFixture(t, scoring.DefaultConfig(), nil, scoring.WithIdempotencyCache(ns))
	ctx := context.Background()
	key := "req-1"

	first := click("fp-f", "198.51.100.20", base)
	first.IdempotencyKey = &key
	d1, err := f.process(ctx, first)
	require.NoError(t, err)
	assert.False(t, d1.Duplicate)

	retry := click("fp-f", "198.51.100.20", base)
	retry.IdempotencyKey = &key
	d2, err := f.process(ctx, retry)
	require.NoError(t, err)
	assert.True(t, d2.Duplicate)
	assert.Equal(t, d1.EventID, d2.EventID)
	assert.Equal(t, d1.FraudScore, d2.FraudScore)

	assert.Len(t, f.stored(t), 1)
	e, err := f.store.Get(ctx, reputation.Key{Type: reputation.IP, ID: "198.51.100.20"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.ActivityCount)
}

func TestEngine_IdempotencyFallsBackToRepository(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx := context.Background()
	key := "req-2"

	first := click("fp-g", "198.51.100.21", base)
	first.IdempotencyKey = &key
	d1, err := f.process(ctx, first)
	require.NoError(t, err)

	retry := click("fp-g", "198.51.100.21", base)
	retry.IdempotencyKey = &key
	d2, err := f.process(ctx, retry)
	require.NoError(t, err)
	assert.True(t, d2.Duplicate)
	assert.Equal(t, d1.EventID, d2.EventID)
	assert.Len(t, f.stored(t), 1)
}

func TestEngine_ConcurrentDuplicatesPersistOnce(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	key := "req-3"

	const n = 10
	decisions := make([]scoring.Decision, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			evt := click("fp-h", "198.51.100.22", base)
			evt.IdempotencyKey = &key
			d, err := f.process(context.Background(), evt)
			assert.NoError(t, err)
			decisions[i] = d
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.stored(t), 1)
	for _, d := range decisions {
		assert.Equal(t, decisions[0].EventID, d.EventID)
	}
}

func TestEngine_ReputationFailureLogsSentinel(t *testing.T) {
	repo := failingApplyRepo{Repository: repository.NewMemoryReputationRepository()}
	f := newFixture(t, scoring.DefaultConfig(), repo)

	d, err := f.process(context.Background(), click("fp-i", "198.51.100.23", base))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrScoringFailed)
	assert.True(t, d.Allowed)
	assert.Equal(t, event.FailedScore, d.FraudScore)

	events := f.stored(t)
	require.Len(t, events, 1)
	assert.True(t, events[0].Failed())
	assert.False(t, events[0].IsFraudulent)
	assert.True(t, events[0].Metadata.ScoringFailed)
	assert.NotEmpty(t, events[0].Metadata.FailureReason)
}

func TestEngine_CancelledCallerStillCommits(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := f.process(ctx, click("fp-j", "198.51.100.24", base))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	assert.Len(t, f.stored(t), 1)
	e, err := f.store.Get(context.Background(), reputation.Key{Type: reputation.Device, ID: "fp-j"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.ActivityCount)
}

func TestEngine_InvalidEventIsNotScored(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)

	evt := click("fp-k", "198.51.100.25", base)
	evt.EventType = "hover"
	_, err := f.process(context.Background(), evt)
	assert.ErrorIs(t, err, domain.ErrInvalidEventKind)
	assert.Empty(t, f.stored(t))
}

func TestEngine_FingerprintChangeForStatedDevice(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx := context.Background()

	first := click("fp-original", "198.51.100.26", base)
	first.DeviceID = "device-9"
	_, err := f.process(ctx, first)
	require.NoError(t, err)

	spoofed := click("fp-spoofed", "198.51.100.26", base.Add(time.Minute))
	spoofed.DeviceID = "device-9"
	d, err := f.process(ctx, spoofed)
	require.NoError(t, err)
	assert.Equal(t, 25, d.FraudScore)
	assert.Contains(t, d.Reasons, "fingerprint: device fingerprint changed")
}

func TestEngine_ForwardDatedEventKeepsBurstWindow(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx := context.Background()

	var at time.Time
	for i := 0; i < 30; i++ {
		at = base.Add(time.Duration(i) * 200 * time.Millisecond)
		_, err := f.process(ctx, click("bot-fp", "203.0.113.60", at))
		require.NoError(t, err)
	}

	f.clock.Set(at)
	_, err := f.engine.Process(ctx, click("bot-fp", "203.0.113.60", at.Add(time.Hour)))
	require.NoError(t, err)

	d, err := f.process(ctx, click("bot-fp", "203.0.113.60", at.Add(200*time.Millisecond)))
	require.NoError(t, err)
	assert.Contains(t, d.Reasons, "velocity: 32 events within 1m0s")
	assert.Contains(t, d.Reasons, "behavior: 200ms since previous event")
	assert.True(t, d.IsFraudulent)
}

func TestEngine_RegularClicksFlagPattern(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx := context.Background()

	var last scoring.Decision
	for i := 0; i < 5; i++ {
		d, err := f.process(ctx, click("fp-metronome", "198.51.100.30", base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		last = d
	}

	assert.Equal(t, 15, last.FraudScore)
	assert.Equal(t, []string{"pattern: regular 1s intervals (stddev 0s)"}, last.Reasons)
}

func TestEngine_DailyClickCapPerUserAndAd(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx := context.Background()

	var decisions []scoring.Decision
	for i := 0; i < 6; i++ {
		evt := click("fp-cap", "198.51.100.31", base.Add(time.Duration(i)*10*time.Minute))
		evt.UserID = "user-cap"
		d, err := f.process(ctx, evt)
		require.NoError(t, err)
		decisions = append(decisions, d)
	}

	assert.Zero(t, decisions[4].FraudScore)
	assert.Equal(t, 12, decisions[5].FraudScore)
	assert.Equal(t, []string{"frequency: 6 clicks on ad within 24h0m0s"}, decisions[5].Reasons)

	other := click("fp-cap", "198.51.100.31", base.Add(time.Hour))
	other.UserID = "user-cap"
	other.AdID = "ad-2"
	d, err := f.process(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, d.FraudScore)
}

func TestEngine_HighClickThroughRate(t *testing.T) {
	f := newFixture(t, scoring.DefaultConfig(), nil)
	ctx := context.Background()

	at := base
	for i := 0; i < 10; i++ {
		evt := click("fp-ctr", "198.51.100.32", at)
		evt.EventType = event.Impression
		evt.UserID = "user-ctr"
		_, err := f.process(ctx, evt)
		require.NoError(t, err)
		at = at.Add(10 * time.Minute)
	}

	var decisions []scoring.Decision
	for i := 0; i < 3; i++ {
		evt := click("fp-ctr", "198.51.100.32", at)
		evt.UserID = "user-ctr"
		d, err := f.process(ctx, evt)
		require.NoError(t, err)
		decisions = append(decisions, d)
		at = at.Add(10 * time.Minute)
	}

	assert.Zero(t, decisions[1].FraudScore)
	assert.Equal(t, 20, decisions[2].FraudScore)
	assert.Equal(t, []string{"ctr: click-through rate 30.0% over 10 impressions"}, decisions[2].Reasons)

	clicks, err := f.events.QueryByTimeRange(ctx, base, at, event.Filter{EventTypes: []event.Type{event.Click}})
	require.NoError(t, err)
	require.Len(t, clicks, 3)
	rec, ok := activity.Classify(&clicks[2], 20)
	require.True(t, ok)
	assert.Equal(t, activity.ClickFraud, rec.Type)
	assert.Equal(t, reputation.User, rec.EntityType)
	assert.Equal(t, "user-ctr", rec.EntityID)
}
