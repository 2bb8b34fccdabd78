package dependency_container

import (
	"context"
	"fmt"

	appActivity "github.com/eventwish/fraudguard/pkg/app/activity"
	"github.com/eventwish/fraudguard/pkg/app/ingest"
	appReputation "github.com/eventwish/fraudguard/pkg/app/reputation"
	"github.com/eventwish/fraudguard/pkg/app/scoring"
	"github.com/eventwish/fraudguard/pkg/config"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	handlers "github.com/eventwish/fraudguard/pkg/handlers/http"
	"github.com/eventwish/fraudguard/pkg/infra/alerting"
	"github.com/eventwish/fraudguard/pkg/infra/cache"
	cacheEvent "github.com/eventwish/fraudguard/pkg/infra/cache/event"
	"github.com/eventwish/fraudguard/pkg/infra/cache/subscriber"
	"github.com/eventwish/fraudguard/pkg/infra/database"
	"github.com/eventwish/fraudguard/pkg/infra/fingerprint"
	"github.com/eventwish/fraudguard/pkg/infra/httpx"
	"github.com/eventwish/fraudguard/pkg/infra/ipintel"
	_ "github.com/eventwish/fraudguard/pkg/infra/migrations"
	"github.com/eventwish/fraudguard/pkg/infra/prometheus"
	"github.com/eventwish/fraudguard/pkg/infra/repository"
	"github.com/eventwish/fraudguard/pkg/infra/telemetry/kafka"
	"github.com/eventwish/fraudguard/pkg/infra/velocity"
	"github.com/eventwish/fraudguard/pkg/middleware"
	"github.com/sirupsen/logrus"
)

type Container struct {
	Cache                  cache.Client
	DB                     *database.DB
	HandlerTransport       *handlers.HandlerTransport
	MiddlewareTransport    *middleware.Transport
	RedisListener          cache.EventListener
	PanicRecoverMiddleware middleware.Middleware
	FingerPrintMiddleware  middleware.Middleware
	FingerprintTracker     fingerprint.Tracker
	EventRepository        event.Repository
	ReputationRepository   reputation.Repository
	ReputationStore        appReputation.Store
	VelocityCounter        velocity.Counter
	IPIntel                ipintel.Provider
	AlertWorker            alerting.Worker
	Engine                 scoring.Engine
	IngestService          ingest.Service
	Aggregator             appActivity.Aggregator
}

type ContainerDI struct {
	Cfg    *config.Config
	Logger *logrus.Logger
}

func NewContainer(di ContainerDI) (*Container, error) {
	cfg, logger := di.Cfg, di.Logger

	prometheus.Initialize(prometheus.MetricsConfig{
		EnableLatency: cfg.Metrics.EnableLatency,
		EnableProcess: cfg.Metrics.EnableProcess,
	})

	c := &Container{}

	// cache
	if cfg.Redis.Enabled {
		cacheInstance, err := cache.NewClient(cache.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS:      cfg.Redis.TLS,
			NearTTL:  cfg.Redis.NearTTL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		c.Cache = cacheInstance

		redisListener := cache.NewRedisEventListener(logger, cacheInstance.RedisClient(), cacheEvent.Registry)
		cache.RegisterEventSubscriber[cacheEvent.InvalidateKeyEvent](
			redisListener, subscriber.NewInvalidateKeyEventSubscriber(logger, cacheInstance))
		cache.RegisterEventSubscriber[cacheEvent.FlushNamespaceEvent](
			redisListener, subscriber.NewFlushNamespaceEventSubscriber(logger, cacheInstance))
		c.RedisListener = redisListener
	} else {
		logger.Info("redis is disabled, using in-process cache")
		c.Cache = cache.NewMemoryClient(logger)
	}

	// repository
	if cfg.Database.Enabled {
		db, err := database.NewDB(logger, &database.Config{
			Host:             cfg.Database.Host,
			Port:             cfg.Database.Port,
			User:             cfg.Database.User,
			Password:         cfg.Database.Password,
			DBName:           cfg.Database.DBName,
			SSLMode:          cfg.Database.SSLMode,
			MaxOpenConns:     cfg.Database.MaxOpenConns,
			MaxIdleConns:     cfg.Database.MaxIdleConns,
			ConnMaxLifetime:  cfg.Database.ConnMaxLifetime,
			MigrationTimeout: cfg.Database.MigrationTimeout,
		})
		if err != nil {
			_ = c.Cache.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		c.DB = db
		c.EventRepository = repository.NewEventRepository(db.DB)
		c.ReputationRepository = repository.NewReputationRepository(db.DB, cfg.Reputation.LockTimeout)
	} else {
		logger.Warn("database is disabled, events and reputation are kept in memory")
		c.EventRepository = repository.NewMemoryEventRepository()
		c.ReputationRepository = repository.NewMemoryReputationRepository()
	}

	if cfg.Redis.Enabled && cfg.Redis.Velocity {
		c.VelocityCounter = velocity.NewRedisCounter(c.Cache.RedisClient(), nil)
	} else {
		c.VelocityCounter = velocity.NewMemoryCounter()
	}

	intel, err := newIPIntel(cfg.IPIntel, c.Cache, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.IPIntel = intel

	publishers := []alerting.Publisher{alerting.NewLogPublisher(logger)}
	if cfg.Alerts.Kafka.Enabled {
		kp, err := kafka.NewPublisher(kafka.Config{
			Host:  cfg.Alerts.Kafka.Host,
			Port:  cfg.Alerts.Kafka.Port,
			Topic: cfg.Alerts.Kafka.Topic,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize kafka alert publisher: %w", err)
		}
		publishers = append(publishers, kp)
	}
	c.AlertWorker = alerting.NewWorker(logger, cfg.Alerts.QueueSize, publishers...)

	// service
	c.ReputationStore = appReputation.NewStore(
		reputationConfig(cfg.Reputation),
		c.ReputationRepository,
		logger,
		appReputation.WithCache(c.Cache.Namespace(cache.ReputationNamespace)),
	)

	engineOpts := []scoring.Option{
		scoring.WithIdempotencyCache(c.Cache.Namespace(cache.IdempotencyNamespace)),
		scoring.WithAlerter(c.AlertWorker),
	}
	if c.IPIntel != nil {
		engineOpts = append(engineOpts, scoring.WithIPIntel(c.IPIntel))
	}
	c.Engine = scoring.NewEngine(
		scoringConfig(cfg.Scoring, cfg.Reputation, cfg.Activity),
		c.ReputationStore,
		c.VelocityCounter,
		c.EventRepository,
		logger,
		engineOpts...,
	)

	c.FingerprintTracker = fingerprint.NewFingerPrintTracker()
	c.IngestService = ingest.NewService(c.Engine, c.FingerprintTracker, logger,
		ingest.WithMaxClockSkew(cfg.Scoring.MaxClockSkew))

	c.Aggregator = appActivity.NewAggregator(
		activityConfig(cfg.Activity),
		c.EventRepository,
		c.ReputationStore,
		c.Cache.Namespace(cache.DashboardNamespace),
		logger,
	)

	//middleware
	c.PanicRecoverMiddleware = middleware.NewPanicRecoverMiddleware(logger)
	c.FingerPrintMiddleware = middleware.NewFingerPrintMiddleware(logger, c.FingerprintTracker)
	c.MiddlewareTransport = middleware.NewTransport(c.PanicRecoverMiddleware, c.FingerPrintMiddleware)

	c.HandlerTransport = &handlers.HandlerTransport{
		// Events
		IngestEventHandler: handlers.NewIngestEventHandler(logger, c.IngestService),
		// Dashboard
		GetDashboardHandler:     handlers.NewGetDashboardHandler(logger, c.Aggregator),
		RefreshDashboardHandler: handlers.NewRefreshDashboardHandler(logger, c.Aggregator),
		AnalyzeTrafficHandler:   handlers.NewAnalyzeTrafficHandler(logger, c.Aggregator),
		ListActivitiesHandler:   handlers.NewListActivitiesHandler(logger, c.Aggregator),
		// Reputation
		GetReputationHandler: handlers.NewGetReputationHandler(logger, c.ReputationStore, cfg.Reputation.NeutralScore),
		// Cache
		InvalidateCacheHandler: handlers.NewInvalidateCacheHandler(logger, c.Cache),
		GetCacheStatsHandler:   handlers.NewGetCacheStatsHandler(c.Cache),
		// Version
		GetVersionHandler: handlers.NewGetVersionHandler(),
	}

	return c, nil
}

// Start launches the background workers. They stop when ctx is done.
func (c *Container) Start(ctx context.Context, alertWorkers int) {
	c.AlertWorker.StartWorkers(alertWorkers)
	c.Aggregator.Start(ctx)
	if c.RedisListener != nil {
		go c.RedisListener.Listen(ctx, cache.InvalidationChannel)
	}
}

func (c *Container) Close() {
	if c.AlertWorker != nil {
		c.AlertWorker.Shutdown()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

func newIPIntel(cfg config.IPIntelConfig, c cache.Client, logger *logrus.Logger) (ipintel.Provider, error) {
	var provider ipintel.Provider
	switch cfg.Provider {
	case "", "none":
		logger.Info("ip intelligence is disabled")
		return nil, nil
	case "static":
		p, err := ipintel.NewStaticProvider(ipintel.StaticConfig{
			DatacenterRanges: cfg.DatacenterRanges,
			VPNRanges:        cfg.VPNRanges,
			ProxyRanges:      cfg.ProxyRanges,
			Orgs:             cfg.Orgs,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize static ip intelligence: %w", err)
		}
		provider = p
	case "http":
		provider = ipintel.NewHTTPProvider(ipintel.HTTPConfig{
			URL:            cfg.URL,
			APIKey:         cfg.APIKey,
			APIKeyHeader:   cfg.APIKeyHeader,
			Timeout:        cfg.Timeout,
			BreakerTimeout: cfg.BreakerTimeout,
			MaxFailures:    cfg.MaxFailures,
		}, httpx.NewFastHTTPClient(httpx.WithTimeout(cfg.Timeout)), logger)
	default:
		return nil, fmt.Errorf("unknown ip intelligence provider %q", cfg.Provider)
	}
	if cfg.CacheTTL > 0 {
		provider = ipintel.NewCachedProvider(provider, c.Namespace(cache.IPIntelNamespace), cfg.CacheTTL, logger)
	}
	return provider, nil
}

func reputationConfig(cfg config.ReputationConfig) appReputation.Config {
	return appReputation.Config{
		Policy: reputation.Policy{
			NeutralScore:    cfg.NeutralScore,
			StalenessWindow: cfg.StalenessWindow,
			HalfLife:        cfg.HalfLife,
			PenaltyRate:     cfg.PenaltyRate,
			CleanReward:     cfg.CleanReward,
		},
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		CacheTTL:     cfg.CacheTTL,
		Shards:       cfg.Shards,
	}
}

func scoringConfig(cfg config.ScoringConfig, rep config.ReputationConfig, act config.ActivityConfig) scoring.Config {
	return scoring.Config{
		Threshold: cfg.Threshold,
		Reputation: scoring.ReputationWeights{
			Weight:  cfg.ReputationWeight,
			Neutral: rep.NeutralScore,
		},
		Velocity: scoring.VelocityWeights{
			Window:  cfg.VelocityWindow,
			Ceiling: cfg.VelocityCeiling,
			Weight:  cfg.VelocityWeight,
		},
		Behavior: scoring.BehaviorWeights{
			Weight:      cfg.BehaviorWeight,
			MinInterval: cfg.MinInterval,
		},
		Pattern: scoring.PatternWeights{
			Weight:       cfg.PatternWeight,
			MinIntervals: cfg.PatternMinGaps,
			MaxStdDev:    cfg.PatternMaxStdDev,
			MaxMean:      cfg.PatternMaxMean,
		},
		Engagement: scoring.EngagementWeights{
			Window:          cfg.EngagementWindow,
			MaxClicks:       cfg.MaxAdClicks,
			FrequencyWeight: cfg.FrequencyWeight,
			CTRThreshold:    cfg.CTRThreshold,
			CTRWeight:       cfg.CTRWeight,
		},
		Network: scoring.NetworkWeights{
			Datacenter: cfg.DatacenterWeight,
			VPN:        cfg.VPNWeight,
			Proxy:      cfg.ProxyWeight,
		},
		FingerprintWeight: cfg.FingerprintWeight,
		IPLookupTimeout:   cfg.IPLookupTimeout,
		MinActivityScore:  act.MinScore,
		IdempotencyTTL:    cfg.IdempotencyTTL,
	}
}

func activityConfig(cfg config.ActivityConfig) appActivity.Config {
	return appActivity.Config{
		Window:          cfg.Window,
		RefreshInterval: cfg.RefreshInterval,
		RecentLimit:     cfg.RecentLimit,
		TopLimit:        cfg.TopLimit,
		MinScore:        cfg.MinScore,
		TrafficWindow:   cfg.TrafficWindow,
	}
}
