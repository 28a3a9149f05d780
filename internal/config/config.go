package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Schema    SchemaConfig    `mapstructure:"schema"`
	Sanitizer SanitizerConfig `mapstructure:"sanitizer"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Debug     bool            `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
	CORSOrigins  string        `mapstructure:"cors_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings. The database is
// only used to look up table and column metadata.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheck     time.Duration `mapstructure:"health_check_period"`
}

// SchemaConfig controls the table metadata cache
type SchemaConfig struct {
	Schemas         []string      `mapstructure:"schemas"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RefreshSchedule string        `mapstructure:"refresh_schedule"` // cron spec, empty disables
}

// SanitizerConfig contains the defaults for payload redaction
type SanitizerConfig struct {
	MaxDepth         int      `mapstructure:"max_depth"`
	Redaction        string   `mapstructure:"redaction"`
	TruncationNotice string   `mapstructure:"truncation_notice"`
	SensitiveKeys    []string `mapstructure:"sensitive_keys"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	ConsoleLevel  string        `mapstructure:"console_level"`  // trace, debug, info, warn, error
	ConsoleFormat string        `mapstructure:"console_format"` // json or console
	Redact        bool          `mapstructure:"redact"`         // run log fields through the sanitizer
	TelemetryURL  string        `mapstructure:"telemetry_url"`  // optional HTTP sink for redacted entries
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BufferSize    int           `mapstructure:"buffer_size"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig contains API rate limiting settings
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Backend  string        `mapstructure:"backend"` // local or redis
	RedisURL string        `mapstructure:"redis_url"`
	Max      int           `mapstructure:"max"`
	Window   time.Duration `mapstructure:"window"`
}

// PubSubConfig selects how schema refreshes are announced to other instances
type PubSubConfig struct {
	Backend  string `mapstructure:"backend"` // local or redis
	RedisURL string `mapstructure:"redis_url"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("studiokit")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/studiokit")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STUDIOKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 4*1024*1024) // 4MB
	viper.SetDefault("server.cors_origins", "*")

	// Database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.database", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.min_connections", 1)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.health_check_period", "1m")

	// Schema cache defaults
	viper.SetDefault("schema.schemas", []string{"public"})
	viper.SetDefault("schema.cache_ttl", "5m")
	viper.SetDefault("schema.refresh_schedule", "@every 5m")

	// Sanitizer defaults
	viper.SetDefault("sanitizer.max_depth", 3)
	viper.SetDefault("sanitizer.redaction", "[REDACTED]")
	viper.SetDefault("sanitizer.truncation_notice", "[REDACTED: max depth reached]")
	viper.SetDefault("sanitizer.sensitive_keys", []string{})

	// Logging defaults
	viper.SetDefault("logging.console_level", "info")
	viper.SetDefault("logging.console_format", "console")
	viper.SetDefault("logging.redact", true)
	viper.SetDefault("logging.telemetry_url", "")
	viper.SetDefault("logging.batch_size", 100)
	viper.SetDefault("logging.flush_interval", "1s")
	viper.SetDefault("logging.buffer_size", 10000)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4317")
	viper.SetDefault("tracing.service_name", "studiokit")
	viper.SetDefault("tracing.environment", "development")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Rate limit defaults
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.backend", "local")
	viper.SetDefault("rate_limit.redis_url", "")
	viper.SetDefault("rate_limit.max", 300)
	viper.SetDefault("rate_limit.window", "1m")

	// Pub/sub defaults
	viper.SetDefault("pubsub.backend", "local")
	viper.SetDefault("pubsub.redis_url", "")

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if c.Database.Enabled {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database configuration error: %w", err)
		}
	}
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("schema configuration error: %w", err)
	}
	if err := c.Sanitizer.Validate(); err != nil {
		return fmt.Errorf("sanitizer configuration error: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration error: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing configuration error: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics configuration error: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit configuration error: %w", err)
	}
	if err := c.PubSub.Validate(); err != nil {
		return fmt.Errorf("pubsub configuration error: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got: %v", sc.ReadTimeout)
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got: %v", sc.WriteTimeout)
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got: %v", sc.IdleTimeout)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got: %d", sc.BodyLimit)
	}
	return nil
}

// Validate validates database configuration
func (dc *DatabaseConfig) Validate() error {
	if dc.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if dc.Port < 1 || dc.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got: %d", dc.Port)
	}
	if dc.User == "" {
		return fmt.Errorf("database user is required")
	}
	if dc.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if dc.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got: %d", dc.MaxConnections)
	}
	if dc.MinConnections < 0 {
		return fmt.Errorf("min_connections cannot be negative, got: %d", dc.MinConnections)
	}
	if dc.MaxConnections < dc.MinConnections {
		return fmt.Errorf("max_connections must be greater than or equal to min_connections")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (dc *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dc.User, dc.Password),
		Host:     fmt.Sprintf("%s:%d", dc.Host, dc.Port),
		Path:     "/" + dc.Database,
		RawQuery: "sslmode=" + url.QueryEscape(dc.SSLMode),
	}
	return u.String()
}

// Validate validates schema cache configuration
func (sc *SchemaConfig) Validate() error {
	if sc.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl cannot be negative, got: %v", sc.CacheTTL)
	}
	if sc.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(sc.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid refresh_schedule %q: %w", sc.RefreshSchedule, err)
		}
	}
	return nil
}

// Validate validates sanitizer configuration
func (sc *SanitizerConfig) Validate() error {
	if sc.MaxDepth < 0 {
		return fmt.Errorf("max_depth cannot be negative, got: %d", sc.MaxDepth)
	}
	if sc.Redaction == "" {
		return fmt.Errorf("redaction cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (lc *LoggingConfig) Validate() error {
	if lc.ConsoleLevel != "" {
		switch lc.ConsoleLevel {
		case "trace", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("invalid console_level: %s (must be one of: trace, debug, info, warn, error)", lc.ConsoleLevel)
		}
	}
	if lc.ConsoleFormat != "" && lc.ConsoleFormat != "json" && lc.ConsoleFormat != "console" {
		return fmt.Errorf("invalid console_format: %s (must be json or console)", lc.ConsoleFormat)
	}
	if lc.TelemetryURL != "" {
		u, err := url.Parse(lc.TelemetryURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("telemetry_url must be an absolute http(s) URL")
		}
	}
	if lc.BatchSize < 0 {
		return fmt.Errorf("batch_size cannot be negative")
	}
	if lc.BufferSize < 0 {
		return fmt.Errorf("buffer_size cannot be negative")
	}
	if lc.FlushInterval < 0 {
		return fmt.Errorf("flush_interval cannot be negative")
	}
	return nil
}

// Validate validates tracing configuration
func (tc *TracingConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got: %f", tc.SampleRate)
	}
	return nil
}

// Validate validates metrics configuration
func (mc *MetricsConfig) Validate() error {
	if mc.Enabled && !strings.HasPrefix(mc.Path, "/") {
		return fmt.Errorf("metrics path must start with '/', got: %q", mc.Path)
	}
	return nil
}

// Validate validates rate limit configuration
func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}
	switch rc.Backend {
	case "local", "":
	case "redis":
		if rc.RedisURL == "" {
			return fmt.Errorf("redis_url is required when using the redis backend")
		}
	default:
		return fmt.Errorf("invalid rate_limit backend: %s (must be local or redis)", rc.Backend)
	}
	if rc.Max <= 0 {
		return fmt.Errorf("max must be positive, got: %d", rc.Max)
	}
	if rc.Window <= 0 {
		return fmt.Errorf("window must be positive, got: %v", rc.Window)
	}
	return nil
}

// Validate validates pub/sub configuration
func (pc *PubSubConfig) Validate() error {
	switch pc.Backend {
	case "local", "":
	case "redis":
		if pc.RedisURL == "" {
			return fmt.Errorf("redis_url is required when using the redis backend")
		}
	default:
		return fmt.Errorf("invalid pubsub backend: %s (must be local or redis)", pc.Backend)
	}
	return nil
}
