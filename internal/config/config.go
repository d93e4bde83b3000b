package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Governor     GovernorConfig     `yaml:"governor" mapstructure:"governor"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	Detect       DetectConfig       `yaml:"detect" mapstructure:"detect"`
	Change       ChangeConfig       `yaml:"change" mapstructure:"change"`
	Discovery    DiscoveryConfig    `yaml:"discovery" mapstructure:"discovery"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Events       EventsConfig       `yaml:"events" mapstructure:"events"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite | postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GovernorConfig configures per-domain throttling and consent handling.
type GovernorConfig struct {
	BaseDelay          time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MinDelay           time.Duration `yaml:"min_delay" mapstructure:"min_delay"`
	MaxDelay           time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	MaxRequestsPerHour int           `yaml:"max_requests_per_hour" mapstructure:"max_requests_per_hour"`
	BlockThreshold     int           `yaml:"block_threshold" mapstructure:"block_threshold"`
	DecayFactor        float64       `yaml:"decay_factor" mapstructure:"decay_factor"`
	RespectRobots      bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	RobotsCacheTTL     time.Duration `yaml:"robots_cache_ttl" mapstructure:"robots_cache_ttl"`
}

// FetchConfig configures the page fetchers.
type FetchConfig struct {
	UserAgent       string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HeadlessEnabled bool          `yaml:"headless_enabled" mapstructure:"headless_enabled"`
	HeadlessTimeout time.Duration `yaml:"headless_timeout" mapstructure:"headless_timeout"`
}

// DetectConfig configures the format detector.
type DetectConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MinClusterSize      int     `yaml:"min_cluster_size" mapstructure:"min_cluster_size"`
	ProfileCacheSize    int     `yaml:"profile_cache_size" mapstructure:"profile_cache_size"`
}

// ChangeConfig configures the change detector.
type ChangeConfig struct {
	// MissingThreshold is the number of consecutive successful scrapes a
	// listing must be absent from before it is deactivated.
	MissingThreshold int `yaml:"missing_threshold" mapstructure:"missing_threshold"`
}

// DiscoveryConfig configures the agency discovery engine.
type DiscoveryConfig struct {
	ProviderTimeout time.Duration `yaml:"provider_timeout" mapstructure:"provider_timeout"`
	DirectoryURL    string        `yaml:"directory_url" mapstructure:"directory_url"`
	SeedFile        string        `yaml:"seed_file" mapstructure:"seed_file"`
}

// OrchestratorConfig configures the scrape worker pool.
type OrchestratorConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
	// RetryAttempts bounds the per-attempt local retry on transient
	// failures, distinct from the governor's cross-attempt backoff.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	// FailedCycleThreshold is the number of consecutive failed cycles
	// before an agency is parked in the failed status.
	FailedCycleThreshold int `yaml:"failed_cycle_threshold" mapstructure:"failed_cycle_threshold"`
}

// EventsConfig configures outbound change-event sinks.
type EventsConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "harvester.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("governor.base_delay", "2s")
	v.SetDefault("governor.min_delay", "500ms")
	v.SetDefault("governor.max_delay", "5m")
	v.SetDefault("governor.max_requests_per_hour", 100)
	v.SetDefault("governor.block_threshold", 3)
	v.SetDefault("governor.decay_factor", 0.75)
	v.SetDefault("governor.respect_robots", true)
	v.SetDefault("governor.robots_cache_ttl", "6h")

	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; HarvesterBot/1.0)")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_body_bytes", 2*1024*1024)
	v.SetDefault("fetch.headless_enabled", false)
	v.SetDefault("fetch.headless_timeout", "45s")

	v.SetDefault("detect.confidence_threshold", 0.4)
	v.SetDefault("detect.min_cluster_size", 3)
	v.SetDefault("detect.profile_cache_size", 512)

	v.SetDefault("change.missing_threshold", 3)

	v.SetDefault("discovery.provider_timeout", "15s")

	v.SetDefault("orchestrator.workers", 8)
	v.SetDefault("orchestrator.retry_attempts", 3)
	v.SetDefault("orchestrator.failed_cycle_threshold", 5)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
