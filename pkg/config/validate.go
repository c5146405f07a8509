package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRules(&cfg.Rules)...)
	errs = append(errs, validateEvaluation(&cfg.Evaluation)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateLifecycle(&cfg.Lifecycle)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateExecutor(&cfg.Executor)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.RequestTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.request_timeout", Message: "request timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be between 0 and 10MB"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be non-negative"})
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, FieldError{Field: "server.rate_limit.requests_per_second", Message: "must be positive"})
		}
		if cfg.RateLimit.Burst <= 0 {
			errs = append(errs, FieldError{Field: "server.rate_limit.burst", Message: "must be positive"})
		}
	}

	return errs
}

func validateRules(cfg *RulesConfig) []FieldError {
	var errs []FieldError

	switch cfg.Source {
	case "file":
		if cfg.Path == "" {
			errs = append(errs, FieldError{Field: "rules.path", Message: "path is required for the file source"})
		}
	case "git":
		if cfg.Git.Repository == "" {
			errs = append(errs, FieldError{Field: "rules.git.repository", Message: "repository is required for the git source"})
		}
		switch cfg.Git.Auth.Type {
		case "none":
		case "token":
			if cfg.Git.Auth.Token == "" {
				errs = append(errs, FieldError{Field: "rules.git.auth.token", Message: "token is required for token auth"})
			}
		case "ssh":
			if cfg.Git.Auth.SSHKeyPath == "" {
				errs = append(errs, FieldError{Field: "rules.git.auth.ssh_key_path", Message: "ssh key path is required for ssh auth"})
			}
		default:
			errs = append(errs, FieldError{Field: "rules.git.auth.type", Message: fmt.Sprintf("unknown auth type %q (valid: token, ssh, none)", cfg.Git.Auth.Type)})
		}
		if cfg.Git.Clone.Depth < 0 {
			errs = append(errs, FieldError{Field: "rules.git.clone.depth", Message: "depth must be non-negative"})
		}
	default:
		errs = append(errs, FieldError{Field: "rules.source", Message: fmt.Sprintf("unknown source %q (valid: file, git)", cfg.Source)})
	}

	if cfg.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(cfg.RefreshSchedule); err != nil {
			errs = append(errs, FieldError{Field: "rules.refresh_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}
	if cfg.RefreshMinInterval < 0 {
		errs = append(errs, FieldError{Field: "rules.refresh_min_interval", Message: "must be non-negative"})
	}

	return errs
}

func validateEvaluation(cfg *EvaluationConfig) []FieldError {
	var errs []FieldError

	if cfg.TopN <= 0 {
		errs = append(errs, FieldError{Field: "evaluation.top_n", Message: "top_n must be positive"})
	}
	if cfg.MaxTopN < cfg.TopN {
		errs = append(errs, FieldError{Field: "evaluation.max_top_n", Message: "max_top_n must be >= top_n"})
	}
	if cfg.ConditionTimeout <= 0 {
		errs = append(errs, FieldError{Field: "evaluation.condition_timeout", Message: "condition timeout must be positive"})
	}
	if cfg.MaxConcurrency <= 0 {
		errs = append(errs, FieldError{Field: "evaluation.max_concurrency", Message: "max concurrency must be positive"})
	}
	if cfg.MaxBatchSize <= 0 {
		errs = append(errs, FieldError{Field: "evaluation.max_batch_size", Message: "max batch size must be positive"})
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if cfg.Backend != "memory" && cfg.Backend != "redis" {
		errs = append(errs, FieldError{Field: "cache.backend", Message: fmt.Sprintf("unknown backend %q (valid: memory, redis)", cfg.Backend)})
	}
	if cfg.TTL < 0 {
		errs = append(errs, FieldError{Field: "cache.ttl", Message: "ttl must be positive"})
	}
	if cfg.MaxEntries < 0 {
		errs = append(errs, FieldError{Field: "cache.max_entries", Message: "max entries must be non-negative"})
	}
	if cfg.Backend == "redis" && cfg.Redis.Address == "" {
		errs = append(errs, FieldError{Field: "cache.redis.address", Message: "address is required for the redis backend"})
	}

	return errs
}

func validateLifecycle(cfg *LifecycleConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "lifecycle.sqlite.path", Message: "path is required for the sqlite backend"})
		}
	default:
		errs = append(errs, FieldError{Field: "lifecycle.backend", Message: fmt.Sprintf("unknown backend %q (valid: memory, sqlite)", cfg.Backend)})
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "audit.sqlite.path", Message: "path is required for the sqlite backend"})
		}
	case "postgres":
		if cfg.Postgres.Database == "" {
			errs = append(errs, FieldError{Field: "audit.postgres.database", Message: "database is required for the postgres backend"})
		}
		if cfg.Postgres.User == "" {
			errs = append(errs, FieldError{Field: "audit.postgres.user", Message: "user is required for the postgres backend"})
		}
		if cfg.Postgres.Port <= 0 || cfg.Postgres.Port > 65535 {
			errs = append(errs, FieldError{Field: "audit.postgres.port", Message: "port must be between 1 and 65535"})
		}
		switch cfg.Postgres.SSLMode {
		case "disable", "require", "verify-ca", "verify-full":
		default:
			errs = append(errs, FieldError{Field: "audit.postgres.ssl_mode", Message: fmt.Sprintf("invalid ssl mode %q", cfg.Postgres.SSLMode)})
		}
	default:
		errs = append(errs, FieldError{Field: "audit.backend", Message: fmt.Sprintf("unknown backend %q (valid: memory, sqlite, postgres)", cfg.Backend)})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "audit.retention.days", Message: "days must be non-negative"})
	}
	if cfg.Retention.Days > 0 {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{Field: "audit.retention.prune_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}

	return errs
}

func validateExecutor(cfg *ExecutorConfig) []FieldError {
	var errs []FieldError

	switch cfg.Type {
	case "log":
	case "webhook":
		if cfg.Webhook.URL == "" && len(cfg.Webhook.Endpoints) == 0 {
			errs = append(errs, FieldError{Field: "executor.webhook", Message: "url or endpoints are required for the webhook executor"})
		}
	default:
		errs = append(errs, FieldError{Field: "executor.type", Message: fmt.Sprintf("unknown executor %q (valid: log, webhook)", cfg.Type)})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "executor.timeout", Message: "timeout must be positive"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("invalid log level %q", cfg.Logging.Level)})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("invalid log format %q", cfg.Logging.Format)})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: fmt.Sprintf("invalid sampler %q", cfg.Tracing.Sampler)})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0 and 1"})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
		}
	}

	if cfg.Health.CheckTimeout < 0 {
		errs = append(errs, FieldError{Field: "telemetry.health.check_timeout", Message: "check timeout must be positive"})
	}

	return errs
}
