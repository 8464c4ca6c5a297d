// Package config loads service configuration from an optional YAML file
// overlaid with VISTA_* environment variables. Precedence: defaults, then
// file, then environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Auth          AuthConfig          `yaml:"auth"`
	Audit         AuditConfig         `yaml:"audit"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server on a separate port for probes.
	HealthPort string `yaml:"health_port"`
}

// StoreConfig selects and configures the document-store backend.
type StoreConfig struct {
	// Backend is "postgres" or "redis".
	Backend string `yaml:"backend"`

	PostgresURL      string `yaml:"postgres_url"`
	PostgresMaxConns int    `yaml:"postgres_max_conns"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// RoleCacheTTL bounds how stale a cached role resolution may be.
	// Zero disables the cache.
	RoleCacheTTL time.Duration `yaml:"role_cache_ttl"`
}

// WorkflowConfig carries the editor-request workflow constants.
type WorkflowConfig struct {
	MaxPendingRequests int           `yaml:"max_pending_requests"`
	CooldownPeriod     time.Duration `yaml:"cooldown_period"`
	StaleRequestAge    time.Duration `yaml:"stale_request_age"`
	JanitorSchedule    string        `yaml:"janitor_schedule"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	TokenSecret string `yaml:"token_secret"`
}

// AuditConfig configures audit log destinations.
type AuditConfig struct {
	ToDatabase bool   `yaml:"to_database"`
	Directory  string `yaml:"directory"`
}

// RateLimitConfig configures API-level request throttling.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	WindowDuration    time.Duration `yaml:"window_duration"`
	// Distributed uses the Redis backend for limits shared across
	// instances; requires the redis store backend or a configured
	// redis_addr.
	Distributed bool `yaml:"distributed"`
}

// ObservabilityConfig holds logging, metrics, and tracing settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Store: StoreConfig{
			Backend:          "postgres",
			PostgresMaxConns: 25,
			RedisAddr:        "localhost:6379",
			RoleCacheTTL:     30 * time.Second,
		},
		Workflow: WorkflowConfig{
			MaxPendingRequests: 3,
			CooldownPeriod:     7 * 24 * time.Hour,
			StaleRequestAge:    90 * 24 * time.Hour,
			JanitorSchedule:    "@daily",
		},
		Audit: AuditConfig{
			ToDatabase: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 300,
			WindowDuration:    time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "memoryvista",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// Load builds the configuration from defaults, the optional file named by
// VISTA_CONFIG_FILE, and VISTA_* environment variables, then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("VISTA_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Server.Host = getEnv("VISTA_HOST", c.Server.Host)
	c.Server.Port = getEnv("VISTA_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("VISTA_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("VISTA_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("VISTA_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("VISTA_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("VISTA_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Store.Backend = getEnv("VISTA_STORE_BACKEND", c.Store.Backend)
	c.Store.PostgresURL = getEnv("VISTA_POSTGRES_URL", c.Store.PostgresURL)
	c.Store.PostgresMaxConns = getEnvInt("VISTA_POSTGRES_MAX_CONNS", c.Store.PostgresMaxConns)
	c.Store.RedisAddr = getEnv("VISTA_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("VISTA_REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = getEnvInt("VISTA_REDIS_DB", c.Store.RedisDB)
	c.Store.RoleCacheTTL = getEnvDuration("VISTA_ROLE_CACHE_TTL", c.Store.RoleCacheTTL)

	c.Workflow.MaxPendingRequests = getEnvInt("VISTA_MAX_PENDING_REQUESTS", c.Workflow.MaxPendingRequests)
	c.Workflow.CooldownPeriod = getEnvDuration("VISTA_COOLDOWN_PERIOD", c.Workflow.CooldownPeriod)
	c.Workflow.StaleRequestAge = getEnvDuration("VISTA_STALE_REQUEST_AGE", c.Workflow.StaleRequestAge)
	c.Workflow.JanitorSchedule = getEnv("VISTA_JANITOR_SCHEDULE", c.Workflow.JanitorSchedule)

	c.Auth.TokenSecret = getEnv("VISTA_TOKEN_SECRET", c.Auth.TokenSecret)

	c.Audit.ToDatabase = getEnvBool("VISTA_AUDIT_TO_DATABASE", c.Audit.ToDatabase)
	c.Audit.Directory = getEnv("VISTA_AUDIT_DIRECTORY", c.Audit.Directory)

	c.RateLimit.Enabled = getEnvBool("VISTA_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerWindow = getEnvInt("VISTA_RATE_LIMIT_REQUESTS", c.RateLimit.RequestsPerWindow)
	c.RateLimit.WindowDuration = getEnvDuration("VISTA_RATE_LIMIT_WINDOW", c.RateLimit.WindowDuration)
	c.RateLimit.Distributed = getEnvBool("VISTA_RATE_LIMIT_DISTRIBUTED", c.RateLimit.Distributed)

	c.Observability.LogLevel = getEnv("VISTA_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("VISTA_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("VISTA_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("VISTA_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("VISTA_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("VISTA_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("VISTA_OTEL_INSECURE", c.Observability.OTelInsecure)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Store.Backend {
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for the postgres backend")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be postgres or redis)", c.Store.Backend)
	}

	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("token secret is required")
	}
	if c.Workflow.MaxPendingRequests <= 0 {
		return fmt.Errorf("max pending requests must be positive")
	}
	if c.Workflow.CooldownPeriod <= 0 {
		return fmt.Errorf("cooldown period must be positive")
	}
	if c.RateLimit.Distributed && c.Store.RedisAddr == "" {
		return fmt.Errorf("distributed rate limiting requires a redis address")
	}
	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when tracing is enabled")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
