package activity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eventwish/fraudguard/pkg/app/reputation"
	"github.com/eventwish/fraudguard/pkg/domain/activity"
	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	domainReputation "github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/eventwish/fraudguard/pkg/infra/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const snapshotKey = "snapshot"

type Config struct {
	Window          time.Duration
	RefreshInterval time.Duration
	RecentLimit     int
	TopLimit        int
	MinScore        int
	TrafficWindow   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:          24 * time.Hour,
		RefreshInterval: time.Minute,
		RecentLimit:     20,
		TopLimit:        10,
		MinScore:        30,
		TrafficWindow:   24 * time.Hour,
	}
}

type Stats struct {
	TotalEvents      int             `json:"totalEvents"`
	TotalActivities  int             `json:"totalActivities"`
	FraudulentEvents int             `json:"fraudulentEvents"`
	ScoringFailures  int             `json:"scoringFailures"`
	FraudRate        float64         `json:"fraudRate"`
	RevenueAtRisk    decimal.Decimal `json:"revenueAtRisk"`
}

type EntitySummary struct {
	EntityType      domainReputation.EntityType `json:"entityType"`
	EntityID        string                      `json:"entityId"`
	ReputationScore float64                     `json:"reputationScore"`
	ActivityCount   int64                       `json:"activityCount"`
	FraudCount      int64                       `json:"fraudCount"`
	LastSeen        time.Time                   `json:"lastSeen"`
}

type Snapshot struct {
	GeneratedAt        time.Time                 `json:"generatedAt"`
	WindowStart        time.Time                 `json:"windowStart"`
	WindowEnd          time.Time                 `json:"windowEnd"`
	Stats              Stats                     `json:"stats"`
	ActivityByType     map[activity.Type]int     `json:"activityByType"`
	ActivityBySeverity map[activity.Severity]int `json:"activityBySeverity"`
	RecentActivities   []activity.Record         `json:"recentActivities"`
	TopSuspiciousUsers []EntitySummary           `json:"topSuspiciousUsers"`
	TopSuspiciousIPs   []EntitySummary           `json:"topSuspiciousIps"`
}

type TrafficAnalysis struct {
	EntityType            domainReputation.EntityType `json:"entityType"`
	EntityID              string                      `json:"entityId"`
	ActivityCount         int                         `json:"activityCount"`
	ActivityFrequency     float64                     `json:"activityFrequency"`
	IntervalStdDevMs      float64                     `json:"intervalStdDevMs"`
	IsFrequencySuspicious bool                        `json:"isFrequencySuspicious"`
	IsPatternSuspicious   bool                        `json:"isPatternSuspicious"`
	IsSuspicious          bool                        `json:"isSuspicious"`
}

const (
	DefaultActivityLimit = 20
	MaxActivityLimit     = 100
)

// ActivityQuery filters the activity listing. Zero values mean no filter,
// except the time range, which defaults to the dashboard window.
type ActivityQuery struct {
	EntityType domainReputation.EntityType
	EntityID   string
	Type       activity.Type
	Severity   activity.Severity
	Start      time.Time
	End        time.Time
	Limit      int
	Offset     int
	Ascending  bool
}

type ActivityPage struct {
	Activities []activity.Record `json:"activities"`
	Total      int               `json:"total"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

//go:generate mockery --name=Aggregator --dir=. --output=./mocks --filename=aggregator_mock.go --case=underscore --with-expecter
type Aggregator interface {
	// Compute builds a snapshot from source data without touching the cache.
	Compute(ctx context.Context) (Snapshot, error)
	// Snapshot serves the cached snapshot, computing it on a miss.
	Snapshot(ctx context.Context) (Snapshot, error)
	Refresh(ctx context.Context) (Snapshot, error)
	// Start refreshes the snapshot every RefreshInterval until ctx is done.
	Start(ctx context.Context)
	AnalyzeTraffic(ctx context.Context, entityType domainReputation.EntityType, entityID string) (TrafficAnalysis, error)
	// Activities pages through classified suspicious activity, newest first
	// unless the query asks otherwise.
	Activities(ctx context.Context, q ActivityQuery) (ActivityPage, error)
}

type aggregator struct {
	cfg     Config
	events  event.Repository
	store   reputation.Store
	cache   cache.Namespace
	logger  *logrus.Logger
	flights singleflight.Group
	now     func() time.Time
}

type Option func(*aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *aggregator) { a.now = now }
}

func NewAggregator(
	cfg Config,
	events event.Repository,
	store reputation.Store,
	ns cache.Namespace,
	logger *logrus.Logger,
	opts ...Option,
) Aggregator {
	a := &aggregator{
		cfg:    cfg,
		events: events,
		store:  store,
		cache:  ns,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *aggregator) Compute(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	end := a.now()
	snap := emptySnapshot(end, end.Add(-a.cfg.Window))

	sum, err := a.events.Summarize(ctx, snap.WindowStart, end)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to summarize events: %w", err)
	}
	snap.Stats.TotalEvents = sum.Total
	snap.Stats.FraudulentEvents = sum.Fraudulent
	snap.Stats.ScoringFailures = sum.Failed
	snap.Stats.RevenueAtRisk = sum.Revenue
	if sum.Total > 0 {
		snap.Stats.FraudRate = float64(sum.Fraudulent) / float64(sum.Total)
	}

	records, err := a.classified(ctx, snap.WindowStart, end, event.Filter{})
	if err != nil {
		return Snapshot{}, err
	}
	users := make(map[string]struct{})
	ips := make(map[string]struct{})
	for _, rec := range records {
		snap.ActivityByType[rec.Type]++
		snap.ActivityBySeverity[rec.Severity]++
		if rec.UserID != "" {
			users[rec.UserID] = struct{}{}
		}
		if rec.IP != "" {
			ips[rec.IP] = struct{}{}
		}
	}
	snap.Stats.TotalActivities = len(records)

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if len(records) > a.cfg.RecentLimit {
		records = records[:a.cfg.RecentLimit]
	}
	snap.RecentActivities = append(snap.RecentActivities, records...)

	if snap.TopSuspiciousUsers, err = a.top(ctx, domainReputation.User, users); err != nil {
		return Snapshot{}, err
	}
	if snap.TopSuspiciousIPs, err = a.top(ctx, domainReputation.IP, ips); err != nil {
		return Snapshot{}, err
	}

	prometheus.DashboardRefreshLatency.Observe(float64(time.Since(start).Milliseconds()))
	return snap, nil
}

// classified loads only events that can classify as suspicious, oldest first.
func (a *aggregator) classified(ctx context.Context, start, end time.Time, filter event.Filter) ([]activity.Record, error) {
	minScore := a.cfg.MinScore
	filter.MinFraudScore = &minScore
	events, err := a.events.QueryByTimeRange(ctx, start, end, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	records := make([]activity.Record, 0, len(events))
	for i := range events {
		if rec, ok := activity.Classify(&events[i], a.cfg.MinScore); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// top ranks entities by ascending reputation, then descending activity.
func (a *aggregator) top(ctx context.Context, typ domainReputation.EntityType, ids map[string]struct{}) ([]EntitySummary, error) {
	out := make([]EntitySummary, 0)
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]domainReputation.Key, 0, len(ids))
	for id := range ids {
		keys = append(keys, domainReputation.Key{Type: typ, ID: id})
	}
	entities, err := a.store.Peek(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s reputations: %w", typ, err)
	}
	for _, e := range entities {
		out = append(out, EntitySummary{
			EntityType:      e.EntityType,
			EntityID:        e.EntityID,
			ReputationScore: e.ReputationScore,
			ActivityCount:   e.ActivityCount,
			FraudCount:      e.FraudCount,
			LastSeen:        e.LastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReputationScore != out[j].ReputationScore {
			return out[i].ReputationScore < out[j].ReputationScore
		}
		if out[i].ActivityCount != out[j].ActivityCount {
			return out[i].ActivityCount > out[j].ActivityCount
		}
		return out[i].EntityID < out[j].EntityID
	})
	if len(out) > a.cfg.TopLimit {
		out = out[:a.cfg.TopLimit]
	}
	return out, nil
}

func (a *aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	if a.cache != nil {
		snap, found, err := cache.GetJSON[Snapshot](ctx, a.cache, snapshotKey)
		if err != nil {
			a.logger.WithError(err).Warn("failed to read cached dashboard snapshot")
		}
		if found {
			return snap, nil
		}
	}
	v, err, _ := a.flights.Do(snapshotKey, func() (interface{}, error) {
		// Shared by every waiter; detached from the first caller's cancellation.
		return a.Refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (a *aggregator) Refresh(ctx context.Context) (Snapshot, error) {
	snap, err := a.Compute(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if a.cache != nil {
		if err := cache.SetJSON(ctx, a.cache, snapshotKey, snap, a.cfg.RefreshInterval); err != nil {
			a.logger.WithError(err).Warn("failed to cache dashboard snapshot")
		}
	}
	return snap, nil
}

func (a *aggregator) Start(ctx context.Context) {
	if a.cfg.RefreshInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(a.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.Refresh(ctx); err != nil && ctx.Err() == nil {
					a.logger.WithError(err).Error("dashboard refresh failed")
				}
			}
		}
	}()
}

func (a *aggregator) AnalyzeTraffic(
	ctx context.Context,
	entityType domainReputation.EntityType,
	entityID string,
) (TrafficAnalysis, error) {
	res := TrafficAnalysis{EntityType: entityType, EntityID: entityID}
	var filter event.Filter
	switch entityType {
	case domainReputation.User:
		filter.UserID = entityID
	case domainReputation.Device:
		filter.DeviceID = entityID
	case domainReputation.IP:
		filter.IP = entityID
	default:
		_, err := domainReputation.EntityTypeFromString(string(entityType))
		return res, err
	}

	end := a.now()
	events, err := a.events.QueryByTimeRange(ctx, end.Add(-a.cfg.TrafficWindow), end, filter)
	if err != nil {
		return res, fmt.Errorf("failed to load events: %w", err)
	}

	res.ActivityCount = len(events)
	if hours := a.cfg.TrafficWindow.Hours(); hours > 0 {
		res.ActivityFrequency = float64(len(events)) / hours
	}

	intervals := make([]float64, 0, len(events))
	for i := 1; i < len(events); i++ {
		intervals = append(intervals, float64(events[i].Timestamp.Sub(events[i-1].Timestamp).Milliseconds()))
	}
	res.IntervalStdDevMs = stdDev(intervals)
	res.IsFrequencySuspicious = res.ActivityFrequency > 10
	res.IsPatternSuspicious = len(intervals) >= 5 && res.IntervalStdDevMs < 1000
	res.IsSuspicious = res.IsFrequencySuspicious || res.IsPatternSuspicious
	return res, nil
}

func (a *aggregator) Activities(ctx context.Context, q ActivityQuery) (ActivityPage, error) {
	var filter event.Filter
	if q.EntityType != "" {
		if _, err := domainReputation.EntityTypeFromString(string(q.EntityType)); err != nil {
			return ActivityPage{}, err
		}
	}
	if q.EntityID != "" {
		switch q.EntityType {
		case domainReputation.User:
			filter.UserID = q.EntityID
		case domainReputation.Device:
			filter.DeviceID = q.EntityID
		case domainReputation.IP:
			filter.IP = q.EntityID
		default:
			return ActivityPage{}, fmt.Errorf("%w: entityId needs an entityType", domain.ErrInvalidActivityFilter)
		}
	}

	end := q.End
	if end.IsZero() {
		end = a.now()
	}
	start := q.Start
	if start.IsZero() {
		start = end.Add(-a.cfg.Window)
	}
	if !start.Before(end) {
		return ActivityPage{}, fmt.Errorf("%w: start must be before end", domain.ErrInvalidActivityFilter)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	limit = min(limit, MaxActivityLimit)
	offset := max(q.Offset, 0)

	records, err := a.classified(ctx, start, end, filter)
	if err != nil {
		return ActivityPage{}, err
	}
	matched := records[:0]
	for _, rec := range records {
		if q.Type != "" && rec.Type != q.Type {
			continue
		}
		if q.Severity != "" && rec.Severity != q.Severity {
			continue
		}
		matched = append(matched, rec)
	}
	if !q.Ascending {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		})
	}

	page := ActivityPage{
		Activities: make([]activity.Record, 0),
		Total:      len(matched),
		Limit:      limit,
		Offset:     offset,
	}
	if offset < len(matched) {
		page.Activities = append(page.Activities, matched[offset:min(offset+limit, len(matched))]...)
	}
	return page, nil
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func emptySnapshot(end, start time.Time) Snapshot {
	snap := Snapshot{
		GeneratedAt:        end,
		WindowStart:        start,
		WindowEnd:          end,
		Stats:              Stats{RevenueAtRisk: decimal.Zero},
		ActivityByType:     make(map[activity.Type]int, len(activity.Types)),
		ActivityBySeverity: make(map[activity.Severity]int, len(activity.Severities)),
		RecentActivities:   make([]activity.Record, 0),
		TopSuspiciousUsers: make([]EntitySummary, 0),
		TopSuspiciousIPs:   make([]EntitySummary, 0),
	}
	for _, t := range activity.Types {
		snap.ActivityByType[t] = 0
	}
	for _, s := range activity.Severities {
		snap.ActivityBySeverity[s] = 0
	}
	return snap
}
