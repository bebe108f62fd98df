package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/catchment/internal/catchment"
	"github.com/sells-group/catchment/internal/postgis"
	"github.com/sells-group/catchment/internal/resilience"
)

// Provider backends.
const (
	ProviderOverpass = "overpass"
	ProviderPostGIS  = "postgis"
)

// Config holds the full application configuration.
type Config struct {
	Walk     WalkConfig     `yaml:"walk" mapstructure:"walk"`
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	PostGIS  PostGISConfig  `yaml:"postgis" mapstructure:"postgis"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Session  SessionConfig  `yaml:"session" mapstructure:"session"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Circuit  CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// WalkConfig bounds catchment queries.
type WalkConfig struct {
	MinMinutes     float64 `yaml:"min_minutes" mapstructure:"min_minutes"`
	MaxMinutes     float64 `yaml:"max_minutes" mapstructure:"max_minutes"`
	DefaultMinutes float64 `yaml:"default_minutes" mapstructure:"default_minutes"`
	SpeedKPH       float64 `yaml:"speed_kph" mapstructure:"speed_kph"`
	SafetyFactor   float64 `yaml:"safety_factor" mapstructure:"safety_factor"`
}

// Limits converts the walk section into catchment.Limits.
func (w WalkConfig) Limits() catchment.Limits {
	return catchment.Limits{
		MinMinutes:     w.MinMinutes,
		MaxMinutes:     w.MaxMinutes,
		DefaultMinutes: w.DefaultMinutes,
		DefaultSpeed:   w.SpeedKPH,
	}
}

// ProviderConfig selects the data backend for both providers.
type ProviderConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
}

// FetchTimeout returns the per-fetch timeout.
func (p ProviderConfig) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutSecs) * time.Second
}

// OverpassConfig configures the Overpass API client.
type OverpassConfig struct {
	Endpoint        string  `yaml:"endpoint" mapstructure:"endpoint"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPTimeoutSecs int     `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`
}

// PostGISConfig configures the PostGIS backend.
type PostGISConfig struct {
	DatabaseURL string             `yaml:"database_url" mapstructure:"database_url"`
	Pool        postgis.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// CacheConfig configures the sqlite fetch cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// SessionConfig configures the per-session result store.
type SessionConfig struct {
	MaxSessions int `yaml:"max_sessions" mapstructure:"max_sessions"`
	TTLMinutes  int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// TTL returns how long an idle session result is kept.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// RetryConfig configures provider retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Resilience converts the section into a resilience.RetryConfig.
func (r RetryConfig) Resilience() resilience.RetryConfig {
	return resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

// CircuitConfig configures provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Resilience converts the section into a resilience.CircuitBreakerConfig.
func (c CircuitConfig) Resilience() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(c.FailureThreshold, c.ResetTimeoutSecs)
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATCHMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("walk.min_minutes", 1)
	v.SetDefault("walk.max_minutes", 15)
	v.SetDefault("walk.default_minutes", 10)
	v.SetDefault("walk.speed_kph", 4.5)
	v.SetDefault("walk.safety_factor", 1.2)
	v.SetDefault("provider.backend", ProviderOverpass)
	v.SetDefault("provider.fetch_timeout_secs", 60)
	v.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.rate_limit", 1.0)
	v.SetDefault("overpass.timeout_secs", 60)
	v.SetDefault("overpass.user_agent", "catchment/1.0")
	v.SetDefault("overpass.http_timeout_secs", 180)
	v.SetDefault("postgis.pool.max_conns", 10)
	v.SetDefault("postgis.pool.min_conns", 1)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "catchment-cache.db")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("session.max_sessions", 1000)
	v.SetDefault("session.ttl_minutes", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 15000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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

// Validate checks the configuration for a command mode: "analyze",
// "serve", "cache" or "postgis". Every problem found is reported.
func (c *Config) Validate(mode string) error {
	var errs []string

	w := c.Walk
	if w.MinMinutes <= 0 || w.MaxMinutes < w.MinMinutes {
		errs = append(errs, fmt.Sprintf("walk minutes range [%v, %v] is invalid", w.MinMinutes, w.MaxMinutes))
	} else if w.DefaultMinutes < w.MinMinutes || w.DefaultMinutes > w.MaxMinutes {
		errs = append(errs, fmt.Sprintf("walk.default_minutes %v outside [%v, %v]", w.DefaultMinutes, w.MinMinutes, w.MaxMinutes))
	}
	if w.SpeedKPH <= 0 {
		errs = append(errs, "walk.speed_kph must be > 0")
	}

	switch c.Provider.Backend {
	case ProviderOverpass:
		if c.Overpass.Endpoint == "" {
			errs = append(errs, "overpass.endpoint is required")
		}
	case ProviderPostGIS:
		if c.PostGIS.DatabaseURL == "" {
			errs = append(errs, "postgis.database_url is required for the postgis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown provider.backend %q", c.Provider.Backend))
	}

	switch mode {
	case "analyze", "cache":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "postgis":
		if c.PostGIS.DatabaseURL == "" {
			errs = append(errs, "postgis.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
