package scoring

import (
	"context"
	"strconv"
	"time"

	appReputation "github.com/eventwish/fraudguard/pkg/app/reputation"
	"github.com/eventwish/fraudguard/pkg/domain/activity"
	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/eventwish/fraudguard/pkg/infra/ipintel"
	"github.com/eventwish/fraudguard/pkg/infra/prometheus"
	"github.com/eventwish/fraudguard/pkg/infra/velocity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Decision is what the ingest boundary hands back to the ad server.
type Decision struct {
	EventID      uuid.UUID `json:"eventId"`
	Allowed      bool      `json:"allowed"`
	FraudScore   int       `json:"fraudScore"`
	IsFraudulent bool      `json:"isFraudulent"`
	Reasons      []string  `json:"reasons"`
	Duplicate    bool      `json:"duplicate,omitempty"`
}

func DecisionFor(evt *event.AnalyticsEvent) Decision {
	reasons := []string(evt.Reasons)
	if reasons == nil {
		reasons = []string{}
	}
	return Decision{
		EventID:      evt.ID,
		Allowed:      !evt.IsFraudulent,
		FraudScore:   evt.FraudScore,
		IsFraudulent: evt.IsFraudulent,
		Reasons:      reasons,
	}
}

type Alerter interface {
	Enqueue(rec activity.Record) bool
}

//go:generate mockery --name=Engine --dir=. --output=./mocks --filename=engine_mock.go --case=underscore --with-expecter
type Engine interface {
	// Score evaluates the event without updating reputation or persisting it.
	// The velocity window does record the event.
	Score(ctx context.Context, evt *event.AnalyticsEvent) Result
	// Process scores, updates reputation and persists the event exactly once.
	Process(ctx context.Context, evt *event.AnalyticsEvent) (Decision, error)
}

type engine struct {
	cfg         Config
	logger      *logrus.Logger
	store       appReputation.Store
	counter     velocity.Counter
	intel       ipintel.Provider
	events      event.Repository
	idempotency cache.Namespace
	alerts      Alerter
	flights     singleflight.Group
	now         func() time.Time
}

type Option func(*engine)

func WithClock(now func() time.Time) Option {
	return func(e *engine) { e.now = now }
}

func WithIdempotencyCache(ns cache.Namespace) Option {
	return func(e *engine) { e.idempotency = ns }
}

func WithAlerter(a Alerter) Option {
	return func(e *engine) { e.alerts = a }
}

// WithIPIntel enables the network signal.
func WithIPIntel(p ipintel.Provider) Option {
	return func(e *engine) { e.intel = p }
}

func NewEngine(
	cfg Config,
	store appReputation.Store,
	counter velocity.Counter,
	events event.Repository,
	logger *logrus.Logger,
	opts ...Option,
) Engine {
	e := &engine{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		counter: counter,
		events:  events,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engine) Score(ctx context.Context, evt *event.AnalyticsEvent) Result {
	start := time.Now()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now()
	}
	in := e.gather(ctx, evt)
	res := Evaluate(e.cfg, evt, in)

	for _, name := range in.Degraded {
		prometheus.DegradedSignalsTotal.WithLabelValues(name).Inc()
	}
	if prometheus.Config.EnableLatency {
		prometheus.ScoringLatency.WithLabelValues("score").Observe(float64(time.Since(start).Milliseconds()))
	}
	return res
}

func (e *engine) gather(ctx context.Context, evt *event.AnalyticsEvent) Inputs {
	var (
		in         Inputs
		network    ipintel.Info
		networkErr error
		lookup     = e.intel != nil && evt.IP != ""
	)

	g, gctx := errgroup.WithContext(ctx)
	if lookup {
		g.Go(func() error {
			network, networkErr = e.lookup(gctx, evt.IP)
			return nil
		})
	}

	reps, err := e.store.GetMany(ctx, reputation.KeysFor(evt))
	if err != nil {
		e.logger.WithError(err).WithField("eventID", evt.ID).Warn("reputation signal degraded")
		in.Degraded = append(in.Degraded, event.SignalReputation)
	}
	in.Reputation = reps

	obs, err := e.observe(ctx, evt)
	if err != nil {
		e.logger.WithError(err).WithField("eventID", evt.ID).Warn("velocity signal degraded")
		in.Degraded = append(in.Degraded, event.SignalVelocity, event.SignalBehavior, event.SignalPattern)
	}
	in.Velocity = obs

	eng, err := e.engage(ctx, evt)
	if err != nil {
		e.logger.WithError(err).WithField("eventID", evt.ID).Warn("engagement signals degraded")
		in.Degraded = append(in.Degraded, event.SignalFrequency, event.SignalCTR)
	}
	in.Engagement = eng

	_ = g.Wait()
	if lookup {
		if networkErr != nil {
			e.logger.WithError(networkErr).WithField("ip", evt.IP).Warn("network signal degraded")
			in.Degraded = append(in.Degraded, event.SignalNetwork)
		} else {
			in.Network = &network
		}
	}
	return in
}

// lookup bounds the IP-intelligence call even when the provider ignores
// cancellation.
func (e *engine) lookup(ctx context.Context, ip string) (ipintel.Info, error) {
	if e.cfg.IPLookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.IPLookupTimeout)
		defer cancel()
	}

	type result struct {
		info ipintel.Info
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		info, err := e.intel.Lookup(ctx, ip)
		ch <- result{info: info, err: err}
	}()

	select {
	case r := <-ch:
		return r.info, r.err
	case <-ctx.Done():
		return ipintel.Info{}, domain.NewSignalError(event.SignalNetwork, ctx.Err())
	}
}

// observe records the event in the fingerprint and IP windows at the server
// clock, so a client timestamp cannot move a window. The count is the busier
// of the two; the interval comes from the fingerprint window when there is
// one.
func (e *engine) observe(ctx context.Context, evt *event.AnalyticsEvent) (velocity.Observation, error) {
	var obs velocity.Observation
	at := e.now()
	if evt.DeviceFingerprint != "" {
		fp, err := e.counter.Record(ctx, "fp:"+evt.DeviceFingerprint, at, e.cfg.Velocity.Window)
		if err != nil {
			return velocity.Observation{}, domain.NewSignalError(event.SignalVelocity, err)
		}
		obs = fp
	}
	if evt.IP != "" {
		ip, err := e.counter.Record(ctx, "ip:"+evt.IP, at, e.cfg.Velocity.Window)
		if err != nil {
			return velocity.Observation{}, domain.NewSignalError(event.SignalVelocity, err)
		}
		if ip.Count > obs.Count {
			obs.Count = ip.Count
		}
		if evt.DeviceFingerprint == "" {
			obs.SincePrevious, obs.HasPrevious, obs.Intervals = ip.SincePrevious, ip.HasPrevious, ip.Intervals
		}
	}
	return obs, nil
}

// engage counts impressions and clicks per user and ad. Only clicks by a
// known user produce engagement inputs.
func (e *engine) engage(ctx context.Context, evt *event.AnalyticsEvent) (*Engagement, error) {
	window := e.cfg.Engagement.Window
	if evt.UserID == "" || window <= 0 {
		return nil, nil
	}
	at := e.now()
	switch evt.EventType {
	case event.Impression:
		if _, err := e.counter.Record(ctx, engagementKey("imp", evt), at, window); err != nil {
			return nil, domain.NewSignalError(event.SignalCTR, err)
		}
	case event.Click:
		clicks, err := e.counter.Record(ctx, engagementKey("clk", evt), at, window)
		if err != nil {
			return nil, domain.NewSignalError(event.SignalFrequency, err)
		}
		impressions, err := e.counter.Count(ctx, engagementKey("imp", evt), at, window)
		if err != nil {
			return nil, domain.NewSignalError(event.SignalCTR, err)
		}
		return &Engagement{Clicks: clicks.Count, Impressions: impressions}, nil
	}
	return nil, nil
}

// engagementKey length-prefixes the user id so ids containing ':' cannot
// collide.
func engagementKey(kind string, evt *event.AnalyticsEvent) string {
	return kind + ":" + strconv.Itoa(len(evt.UserID)) + ":" + evt.UserID + ":" + evt.AdID
}
