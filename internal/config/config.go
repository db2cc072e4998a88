// Package config loads the engine configuration from .env and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	PersistentDriverMySQL  = "mysql"
	PersistentDriverBadger = "badger"
)

// Config holds application configuration values loaded from .env or environment variables.
type Config struct {
	Env            string        `mapstructure:"APP_ENV"`
	ServerAddress  string        `mapstructure:"SERVER_ADDRESS"`
	ContextTimeout time.Duration `mapstructure:"CONTEXT_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	LogFormat      string        `mapstructure:"LOG_FORMAT"`
	AllowedOrigins string        `mapstructure:"ALLOWED_ORIGINS"`

	DBHost      string `mapstructure:"DATABASE_HOST"`
	DBPort      string `mapstructure:"DATABASE_PORT"`
	DBUser      string `mapstructure:"DATABASE_USER"`
	DBPass      string `mapstructure:"DATABASE_PASS"`
	DBName      string `mapstructure:"DATABASE_NAME"`
	DBMaxRetry  int    `mapstructure:"DATABASE_MAX_RETRY"`
	AutoMigrate bool   `mapstructure:"DATABASE_AUTO_MIGRATE"`

	CacheHost string `mapstructure:"CACHE_HOST"`
	CachePort string `mapstructure:"CACHE_PORT"`
	CachePass string `mapstructure:"CACHE_PASS"`
	CacheDB   int    `mapstructure:"CACHE_DB"`

	PersistentCacheDriver string `mapstructure:"PERSISTENT_CACHE_DRIVER"`
	BadgerPath            string `mapstructure:"BADGER_PATH"`

	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`
	AMQPQueue    string `mapstructure:"AMQP_QUEUE"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`

	// engagement counter cache
	LikeStateTTL         time.Duration `mapstructure:"LIKE_STATE_TTL"`
	HydrationClaimTTL    time.Duration `mapstructure:"HYDRATION_CLAIM_TTL"`
	HydrationWait        time.Duration `mapstructure:"HYDRATION_WAIT"`
	BloomBitSize         uint64        `mapstructure:"BLOOM_FILTER_SIZE"`
	ReconcileConcurrency int           `mapstructure:"RECONCILE_CONCURRENCY"`

	// affinity tracker
	RecentInteractionsCap int64         `mapstructure:"RECENT_INTERACTIONS_CAP"`
	AffinityTTL           time.Duration `mapstructure:"AFFINITY_TTL"`
	ProfileTTL            time.Duration `mapstructure:"PROFILE_TTL"`

	// ranking and feed cache
	FeedOutputSize     int           `mapstructure:"FEED_OUTPUT_SIZE"`
	CandidatePoolSize  int           `mapstructure:"CANDIDATE_POOL_SIZE"`
	FastFeedTTL        time.Duration `mapstructure:"FAST_FEED_TTL"`
	PersistentFeedTTL  time.Duration `mapstructure:"PERSISTENT_FEED_TTL"`
	FeedComputeTimeout time.Duration `mapstructure:"FEED_COMPUTE_TIMEOUT"`
	AlgorithmVersion   string        `mapstructure:"ALGORITHM_VERSION"`

	// scheduler
	ReconcileInterval      time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	PrecomputeInterval     time.Duration `mapstructure:"PRECOMPUTE_INTERVAL"`
	PrecomputeActiveWindow time.Duration `mapstructure:"PRECOMPUTE_ACTIVE_WINDOW"`
	PrecomputeConcurrency  int           `mapstructure:"PRECOMPUTE_CONCURRENCY"`
	CleanupInterval        time.Duration `mapstructure:"CLEANUP_INTERVAL"`
	InteractionQueueSize   int           `mapstructure:"INTERACTION_QUEUE_SIZE"`
	InteractionWorkers     int           `mapstructure:"INTERACTION_WORKERS"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVER_ADDRESS", ":9090")
	v.SetDefault("CONTEXT_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("ALLOWED_ORIGINS", "*")

	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "3306")
	v.SetDefault("DATABASE_USER", "root")
	v.SetDefault("DATABASE_PASS", "")
	v.SetDefault("DATABASE_NAME", "feed")
	v.SetDefault("DATABASE_MAX_RETRY", 10)
	v.SetDefault("DATABASE_AUTO_MIGRATE", false)

	v.SetDefault("CACHE_HOST", "localhost")
	v.SetDefault("CACHE_PORT", "6379")
	v.SetDefault("CACHE_PASS", "")
	v.SetDefault("CACHE_DB", 0)

	v.SetDefault("PERSISTENT_CACHE_DRIVER", PersistentDriverMySQL)
	v.SetDefault("BADGER_PATH", "./data/feeds")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "interactions")
	v.SetDefault("AMQP_QUEUE", "feed-engine.interactions")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)

	v.SetDefault("LIKE_STATE_TTL", "24h")
	v.SetDefault("HYDRATION_CLAIM_TTL", "10s")
	v.SetDefault("HYDRATION_WAIT", "2s")
	v.SetDefault("BLOOM_FILTER_SIZE", 10000000)
	v.SetDefault("RECONCILE_CONCURRENCY", 8)

	v.SetDefault("RECENT_INTERACTIONS_CAP", 100)
	v.SetDefault("AFFINITY_TTL", "720h")
	v.SetDefault("PROFILE_TTL", "30m")

	v.SetDefault("FEED_OUTPUT_SIZE", 50)
	v.SetDefault("CANDIDATE_POOL_SIZE", 200)
	v.SetDefault("FAST_FEED_TTL", "15m")
	v.SetDefault("PERSISTENT_FEED_TTL", "6h")
	v.SetDefault("FEED_COMPUTE_TIMEOUT", "5s")
	v.SetDefault("ALGORITHM_VERSION", "v1")

	v.SetDefault("RECONCILE_INTERVAL", "30s")
	v.SetDefault("PRECOMPUTE_INTERVAL", "10m")
	v.SetDefault("PRECOMPUTE_ACTIVE_WINDOW", "24h")
	v.SetDefault("PRECOMPUTE_CONCURRENCY", 4)
	v.SetDefault("CLEANUP_INTERVAL", "1h")
	v.SetDefault("INTERACTION_QUEUE_SIZE", 1024)
	v.SetDefault("INTERACTION_WORKERS", 2)
}

// LoadConfig reads an optional .env file, then the environment, on top of the defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, reading configuration from the environment")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return errors.New("SERVER_ADDRESS is required")
	}
	durations := map[string]time.Duration{
		"CONTEXT_TIMEOUT":      c.ContextTimeout,
		"LIKE_STATE_TTL":       c.LikeStateTTL,
		"HYDRATION_CLAIM_TTL":  c.HydrationClaimTTL,
		"AFFINITY_TTL":         c.AffinityTTL,
		"PROFILE_TTL":          c.ProfileTTL,
		"FAST_FEED_TTL":        c.FastFeedTTL,
		"PERSISTENT_FEED_TTL":  c.PersistentFeedTTL,
		"FEED_COMPUTE_TIMEOUT": c.FeedComputeTimeout,
		"RECONCILE_INTERVAL":   c.ReconcileInterval,
		"PRECOMPUTE_INTERVAL":  c.PrecomputeInterval,
		"CLEANUP_INTERVAL":     c.CleanupInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.LikeStateTTL < time.Second {
		return errors.New("LIKE_STATE_TTL must be at least one second")
	}
	sizes := map[string]int64{
		"FEED_OUTPUT_SIZE":        int64(c.FeedOutputSize),
		"CANDIDATE_POOL_SIZE":     int64(c.CandidatePoolSize),
		"RECENT_INTERACTIONS_CAP": c.RecentInteractionsCap,
		"RECONCILE_CONCURRENCY":   int64(c.ReconcileConcurrency),
		"PRECOMPUTE_CONCURRENCY":  int64(c.PrecomputeConcurrency),
		"INTERACTION_QUEUE_SIZE":  int64(c.InteractionQueueSize),
		"INTERACTION_WORKERS":     int64(c.InteractionWorkers),
		"BLOOM_FILTER_SIZE":       int64(c.BloomBitSize),
	}
	for name, n := range sizes {
		if n <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.FastFeedTTL > c.PersistentFeedTTL {
		return errors.New("FAST_FEED_TTL must not exceed PERSISTENT_FEED_TTL")
	}
	switch c.PersistentCacheDriver {
	case PersistentDriverMySQL, PersistentDriverBadger:
	default:
		return fmt.Errorf("unknown PERSISTENT_CACHE_DRIVER %q", c.PersistentCacheDriver)
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return errors.New("TRACING_SAMPLE_RATIO must be within [0, 1]")
	}
	return nil
}

// DSN builds the MySQL DSN. Times are parsed into UTC.
func (c *Config) DSN() string {
	cfg := mysqlDriver.NewConfig()
	cfg.User = c.DBUser
	cfg.Passwd = c.DBPass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.DBHost, c.DBPort)
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// RedisAddr is the host:port of the fast store.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.CacheHost, c.CachePort)
}
