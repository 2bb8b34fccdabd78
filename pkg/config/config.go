package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	Activity   ActivityConfig   `mapstructure:"activity"`
	IPIntel    IPIntelConfig    `mapstructure:"ipintel"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	BodyLimit       int           `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

type MetricsConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	EnableLatency bool `mapstructure:"enable_latency"`
	EnableProcess bool `mapstructure:"enable_process"`
}

type DatabaseConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"name"`
	SSLMode          string        `mapstructure:"sslmode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	NearTTL  time.Duration `mapstructure:"near_ttl"`
	// Velocity keeps the sliding windows in redis instead of process memory.
	Velocity bool `mapstructure:"velocity"`
}

type ScoringConfig struct {
	Threshold         int           `mapstructure:"threshold"`
	ReputationWeight  float64       `mapstructure:"reputation_weight"`
	VelocityWindow    time.Duration `mapstructure:"velocity_window"`
	VelocityCeiling   int64         `mapstructure:"velocity_ceiling"`
	VelocityWeight    float64       `mapstructure:"velocity_weight"`
	BehaviorWeight    float64       `mapstructure:"behavior_weight"`
	MinInterval       time.Duration `mapstructure:"min_interval"`
	PatternWeight     float64       `mapstructure:"pattern_weight"`
	PatternMinGaps    int           `mapstructure:"pattern_min_gaps"`
	PatternMaxStdDev  time.Duration `mapstructure:"pattern_max_stddev"`
	PatternMaxMean    time.Duration `mapstructure:"pattern_max_mean"`
	EngagementWindow  time.Duration `mapstructure:"engagement_window"`
	MaxAdClicks       int64         `mapstructure:"max_ad_clicks"`
	FrequencyWeight   float64       `mapstructure:"frequency_weight"`
	CTRThreshold      float64       `mapstructure:"ctr_threshold"`
	CTRWeight         float64       `mapstructure:"ctr_weight"`
	DatacenterWeight  float64       `mapstructure:"datacenter_weight"`
	VPNWeight         float64       `mapstructure:"vpn_weight"`
	ProxyWeight       float64       `mapstructure:"proxy_weight"`
	FingerprintWeight float64       `mapstructure:"fingerprint_weight"`
	IPLookupTimeout   time.Duration `mapstructure:"ip_lookup_timeout"`
	IdempotencyTTL    time.Duration `mapstructure:"idempotency_ttl"`
	// MaxClockSkew bounds how far ahead of the server a client timestamp may be.
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew"`
}

type ReputationConfig struct {
	NeutralScore    float64       `mapstructure:"neutral_score"`
	StalenessWindow time.Duration `mapstructure:"staleness_window"`
	HalfLife        time.Duration `mapstructure:"half_life"`
	PenaltyRate     float64       `mapstructure:"penalty_rate"`
	CleanReward     float64       `mapstructure:"clean_reward"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	Shards          int           `mapstructure:"shards"`
}

type ActivityConfig struct {
	Window          time.Duration `mapstructure:"window"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RecentLimit     int           `mapstructure:"recent_limit"`
	TopLimit        int           `mapstructure:"top_limit"`
	MinScore        int           `mapstructure:"min_score"`
	TrafficWindow   time.Duration `mapstructure:"traffic_window"`
}

type IPIntelConfig struct {
	// Provider is one of "static", "http" or "none".
	Provider         string            `mapstructure:"provider"`
	URL              string            `mapstructure:"url"`
	APIKey           string            `mapstructure:"api_key"`
	APIKeyHeader     string            `mapstructure:"api_key_header"`
	Timeout          time.Duration     `mapstructure:"timeout"`
	MaxFailures      uint32            `mapstructure:"max_failures"`
	BreakerTimeout   time.Duration     `mapstructure:"breaker_timeout"`
	CacheTTL         time.Duration     `mapstructure:"cache_ttl"`
	DatacenterRanges []string          `mapstructure:"datacenter_ranges"`
	VPNRanges        []string          `mapstructure:"vpn_ranges"`
	ProxyRanges      []string          `mapstructure:"proxy_ranges"`
	Orgs             map[string]string `mapstructure:"orgs"`
}

type AlertsConfig struct {
	Workers   int         `mapstructure:"workers"`
	QueueSize int         `mapstructure:"queue_size"`
	Kafka     KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	Topic   string `mapstructure:"topic"`
}

var globalConfig Config

// Load reads config.yaml from configPath, ./config or the working directory.
// A missing file is not an error: defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaultValues(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file config.yaml: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return &globalConfig, nil
}

func GetConfig() *Config {
	return &globalConfig
}

func (c *Config) Validate() error {
	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 100 {
		return fmt.Errorf("scoring.threshold must be within 0-100, got %d", c.Scoring.Threshold)
	}
	if c.Reputation.NeutralScore <= 0 || c.Reputation.NeutralScore > 100 {
		return fmt.Errorf("reputation.neutral_score must be within (0, 100], got %v", c.Reputation.NeutralScore)
	}
	switch c.IPIntel.Provider {
	case "static", "none", "":
	case "http":
		if c.IPIntel.URL == "" {
			return errors.New("ipintel.url is required for the http provider")
		}
	default:
		return fmt.Errorf("unknown ipintel.provider %q", c.IPIntel.Provider)
	}
	return nil
}

func setDefaultValues(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("server.body_limit", 1<<20)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "fraudguard.log")
	v.SetDefault("logging.console", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.enable_latency", true)
	v.SetDefault("metrics.enable_process", true)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "fraudguard")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.migration_timeout", time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)
	v.SetDefault("redis.near_ttl", 5*time.Second)
	v.SetDefault("redis.velocity", true)

	v.SetDefault("scoring.threshold", 70)
	v.SetDefault("scoring.reputation_weight", 35)
	v.SetDefault("scoring.velocity_window", time.Minute)
	v.SetDefault("scoring.velocity_ceiling", 20)
	v.SetDefault("scoring.velocity_weight", 45)
	v.SetDefault("scoring.behavior_weight", 25)
	v.SetDefault("scoring.min_interval", 500*time.Millisecond)
	v.SetDefault("scoring.pattern_weight", 15)
	v.SetDefault("scoring.pattern_min_gaps", 2)
	v.SetDefault("scoring.pattern_max_stddev", 200*time.Millisecond)
	v.SetDefault("scoring.pattern_max_mean", 2*time.Second)
	v.SetDefault("scoring.engagement_window", 24*time.Hour)
	v.SetDefault("scoring.max_ad_clicks", 5)
	v.SetDefault("scoring.frequency_weight", 20)
	v.SetDefault("scoring.ctr_threshold", 20)
	v.SetDefault("scoring.ctr_weight", 20)
	v.SetDefault("scoring.datacenter_weight", 30)
	v.SetDefault("scoring.vpn_weight", 25)
	v.SetDefault("scoring.proxy_weight", 20)
	v.SetDefault("scoring.fingerprint_weight", 25)
	v.SetDefault("scoring.ip_lookup_timeout", 150*time.Millisecond)
	v.SetDefault("scoring.idempotency_ttl", 24*time.Hour)
	v.SetDefault("scoring.max_clock_skew", 5*time.Minute)

	v.SetDefault("reputation.neutral_score", 50)
	v.SetDefault("reputation.staleness_window", 24*time.Hour)
	v.SetDefault("reputation.half_life", 7*24*time.Hour)
	v.SetDefault("reputation.penalty_rate", 0.2)
	v.SetDefault("reputation.clean_reward", 1)
	v.SetDefault("reputation.max_retries", 3)
	v.SetDefault("reputation.retry_backoff", 10*time.Millisecond)
	v.SetDefault("reputation.cache_ttl", 5*time.Minute)
	v.SetDefault("reputation.lock_timeout", 2*time.Second)
	v.SetDefault("reputation.shards", 256)

	v.SetDefault("activity.window", 24*time.Hour)
	v.SetDefault("activity.refresh_interval", time.Minute)
	v.SetDefault("activity.recent_limit", 20)
	v.SetDefault("activity.top_limit", 10)
	v.SetDefault("activity.min_score", 30)
	v.SetDefault("activity.traffic_window", 24*time.Hour)

	v.SetDefault("ipintel.provider", "static")
	v.SetDefault("ipintel.url", "")
	v.SetDefault("ipintel.api_key", "")
	v.SetDefault("ipintel.api_key_header", "Authorization")
	v.SetDefault("ipintel.timeout", 150*time.Millisecond)
	v.SetDefault("ipintel.max_failures", 5)
	v.SetDefault("ipintel.breaker_timeout", 30*time.Second)
	v.SetDefault("ipintel.cache_ttl", time.Hour)

	v.SetDefault("alerts.workers", 2)
	v.SetDefault("alerts.queue_size", 1000)
	v.SetDefault("alerts.kafka.enabled", false)
	v.SetDefault("alerts.kafka.host", "localhost")
	v.SetDefault("alerts.kafka.port", "9092")
	v.SetDefault("alerts.kafka.topic", "fraudguard-alerts")
}
