// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Capability    CapabilityConfig    `yaml:"capability"`
	Table         TableConfig         `yaml:"table"`
	Idempotency   IdempotencyConfig   `yaml:"idempotency"`
	Search        SearchConfig        `yaml:"search"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// SessionConfig describes the login gate and session tokens.
type SessionConfig struct {
	Secret        string          `yaml:"secret"`
	Issuer        string          `yaml:"issuer"`
	TokenTTL      time.Duration   `yaml:"token_ttl"`
	IdleTTL       time.Duration   `yaml:"idle_ttl"`
	SweepInterval time.Duration   `yaml:"sweep_interval"`
	Accounts      []AccountConfig `yaml:"accounts"`
}

// AccountConfig is one login account. An empty list keeps the built-in
// demo accounts.
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// DefinitionsConfig describes where to find section definition files.
// No directories means the definitions compiled into the binary.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
}

// CapabilityConfig describes the role policy.
type CapabilityConfig struct {
	StaticPolicyFile string      `yaml:"static_policy_file"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// TableConfig describes defaults shared by every section table.
type TableConfig struct {
	Locale    string `yaml:"locale"`
	PageSizes []int  `yaml:"page_sizes"`
}

// IdempotencyConfig describes the submission deduplication store.
type IdempotencyConfig struct {
	Enabled bool                   `yaml:"enabled"`
	Store   IdempotencyStoreConfig `yaml:"store"`
}

// IdempotencyStoreConfig describes idempotency persistence settings.
type IdempotencyStoreConfig struct {
	Driver     string        `yaml:"driver"`
	Addr       string        `yaml:"addr"`
	DB         int           `yaml:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// BreakerThreshold consecutive redis failures stop keyed submits from
	// reaching redis for BreakerCooldown.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// SearchConfig describes search settings.
type SearchConfig struct {
	TimeoutPerProvider    time.Duration `yaml:"timeout_per_provider"`
	MaxResultsPerProvider int           `yaml:"max_results_per_provider"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values. The session
// secret has no default.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type",
					"X-Correlation-Id", "X-Idempotency-Key", "If-None-Match"},
				MaxAge: 86400,
			},
		},
		Session: SessionConfig{
			Issuer:        "repairdesk",
			TokenTTL:      8 * time.Hour,
			IdleTTL:       30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Capability: CapabilityConfig{
			Cache: CacheConfig{TTL: 5 * time.Minute},
		},
		Table: TableConfig{
			Locale:    "en",
			PageSizes: []int{10, 25, 50, 100},
		},
		Idempotency: IdempotencyConfig{
			Enabled: true,
			Store: IdempotencyStoreConfig{
				Driver:           "memory",
				DefaultTTL:       24 * time.Hour,
				BreakerThreshold: 5,
				BreakerCooldown:  30 * time.Second,
			},
		},
		Search: SearchConfig{
			TimeoutPerProvider:    3 * time.Second,
			MaxResultsPerProvider: 50,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "stdout",
				SamplingRate: 1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation, for tools that only inspect
// definitions or accounts.
func Read(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if len(c.Session.Secret) < 32 {
		errs = append(errs, "session.secret must be at least 32 bytes")
	}
	if c.Session.TokenTTL <= 0 {
		errs = append(errs, "session.token_ttl must be positive")
	}
	if c.Session.IdleTTL < 0 {
		errs = append(errs, "session.idle_ttl must not be negative")
	}
	for i, a := range c.Session.Accounts {
		if a.Username == "" || a.Password == "" || a.Role == "" {
			errs = append(errs, fmt.Sprintf("session.accounts[%d] needs username, password and role", i))
		}
	}
	for _, n := range c.Table.PageSizes {
		if n <= 0 {
			errs = append(errs, "table.page_sizes must be positive")
			break
		}
	}
	switch c.Idempotency.Store.Driver {
	case "memory":
	case "redis":
		if c.Idempotency.Enabled && c.Idempotency.Store.Addr == "" {
			errs = append(errs, "idempotency.store.addr is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("idempotency.store.driver %q must be memory or redis", c.Idempotency.Store.Driver))
	}
	if c.Observability.Tracing.Enabled && !slices.Contains([]string{"stdout", "otlp"}, c.Observability.Tracing.Exporter) {
		errs = append(errs, fmt.Sprintf("observability.tracing.exporter %q must be stdout or otlp", c.Observability.Tracing.Exporter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads REPAIRDESK_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPAIRDESK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REPAIRDESK_SESSION_SECRET"); v != "" {
		cfg.Session.Secret = v
	}
	if v := os.Getenv("REPAIRDESK_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("REPAIRDESK_DEFINITIONS_DIRS"); v != "" {
		cfg.Definitions.Directories = strings.Split(v, ",")
	}
	if v := os.Getenv("REPAIRDESK_CAPABILITY_POLICY_FILE"); v != "" {
		cfg.Capability.StaticPolicyFile = v
	}
	if v := os.Getenv("REPAIRDESK_IDEMPOTENCY_REDIS_ADDR"); v != "" {
		cfg.Idempotency.Store.Driver = "redis"
		cfg.Idempotency.Store.Addr = v
	}
	if v := os.Getenv("REPAIRDESK_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Enabled = true
		cfg.Observability.Tracing.Exporter = "otlp"
		cfg.Observability.Tracing.Endpoint = v
	}
}
