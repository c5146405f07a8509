package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	return Parse(data, path)
}

// Parse decodes, defaults, and validates configuration from YAML bytes.
// The name is only used in error messages.
func Parse(data []byte, name string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", name, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention COMPASS_SECTION_FIELD (e.g., COMPASS_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	setString("COMPASS_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	setDuration("COMPASS_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	setBool("COMPASS_SERVER_RATE_LIMIT_ENABLED", &cfg.Server.RateLimit.Enabled)

	// Rules overrides
	setString("COMPASS_RULES_SOURCE", &cfg.Rules.Source)
	setString("COMPASS_RULES_PATH", &cfg.Rules.Path)
	setBool("COMPASS_RULES_WATCH", &cfg.Rules.Watch)
	setString("COMPASS_RULES_REFRESH_SCHEDULE", &cfg.Rules.RefreshSchedule)
	setString("COMPASS_RULES_GIT_REPOSITORY", &cfg.Rules.Git.Repository)
	setString("COMPASS_RULES_GIT_BRANCH", &cfg.Rules.Git.Branch)
	if val := os.Getenv("COMPASS_RULES_GIT_TOKEN"); val != "" {
		cfg.Rules.Git.Auth.Token = val
		if cfg.Rules.Git.Auth.Type == "none" {
			cfg.Rules.Git.Auth.Type = "token"
		}
	}

	// Evaluation overrides
	setInt("COMPASS_EVALUATION_TOP_N", &cfg.Evaluation.TopN)
	setDuration("COMPASS_EVALUATION_CONDITION_TIMEOUT", &cfg.Evaluation.ConditionTimeout)

	// Cache overrides
	setBool("COMPASS_CACHE_ENABLED", &cfg.Cache.Enabled)
	setString("COMPASS_CACHE_BACKEND", &cfg.Cache.Backend)
	setDuration("COMPASS_CACHE_TTL", &cfg.Cache.TTL)
	setString("COMPASS_CACHE_REDIS_ADDRESS", &cfg.Cache.Redis.Address)
	setString("COMPASS_CACHE_REDIS_PASSWORD", &cfg.Cache.Redis.Password)

	// Storage overrides
	setString("COMPASS_LIFECYCLE_BACKEND", &cfg.Lifecycle.Backend)
	setString("COMPASS_LIFECYCLE_SQLITE_PATH", &cfg.Lifecycle.SQLite.Path)
	setString("COMPASS_AUDIT_BACKEND", &cfg.Audit.Backend)
	setString("COMPASS_AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	setString("COMPASS_AUDIT_POSTGRES_HOST", &cfg.Audit.Postgres.Host)
	setInt("COMPASS_AUDIT_POSTGRES_PORT", &cfg.Audit.Postgres.Port)
	setString("COMPASS_AUDIT_POSTGRES_DATABASE", &cfg.Audit.Postgres.Database)
	setString("COMPASS_AUDIT_POSTGRES_USER", &cfg.Audit.Postgres.User)
	setString("COMPASS_AUDIT_POSTGRES_PASSWORD", &cfg.Audit.Postgres.Password)
	setInt("COMPASS_AUDIT_RETENTION_DAYS", &cfg.Audit.Retention.Days)

	// Executor overrides
	setString("COMPASS_EXECUTOR_TYPE", &cfg.Executor.Type)
	setString("COMPASS_EXECUTOR_WEBHOOK_URL", &cfg.Executor.Webhook.URL)

	// Telemetry overrides
	setString("COMPASS_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	setString("COMPASS_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	setBool("COMPASS_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	setBool("COMPASS_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	setString("COMPASS_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
}

func setString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
