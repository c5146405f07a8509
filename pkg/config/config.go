package config

import "time"

// Config is the root configuration structure for Compass.
// It contains all configuration sections for the API server, rule
// repository, evaluation pipeline, caching, lifecycle and audit storage,
// action execution, and telemetry.
type Config struct {
	// Server contains HTTP API server configuration including listen address,
	// timeouts, and rate limiting.
	Server ServerConfig `yaml:"server"`

	// Rules contains configuration for the rule repository: where rules are
	// loaded from and how changes are picked up.
	Rules RulesConfig `yaml:"rules"`

	// Evaluation contains configuration for condition evaluation, scoring and
	// ranking.
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Cache contains configuration for the recommendation cache.
	Cache CacheConfig `yaml:"cache"`

	// Lifecycle contains configuration for recommendation state storage.
	Lifecycle LifecycleConfig `yaml:"lifecycle"`

	// Audit contains configuration for the audit event store and retention.
	Audit AuditConfig `yaml:"audit"`

	// Executor contains configuration for the action executor the Execute
	// operation delegates to.
	Executor ExecutorConfig `yaml:"executor"`

	// Telemetry contains configuration for observability including logging,
	// metrics, tracing, and health checks.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 15s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds the handling of a single API request.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the size of request bodies.
	// Default: 4194304 (4MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// RateLimit throttles API requests across all clients.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures a token bucket limiter.
type RateLimitConfig struct {
	// Enabled turns the limiter on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained request rate.
	// Default: 100
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the maximum number of requests allowed at once.
	// Default: 200
	Burst int `yaml:"burst"`
}

// RulesConfig contains configuration for the rule repository.
type RulesConfig struct {
	// Source selects where rules are loaded from.
	// Valid values: "file", "git"
	// Default: "file"
	Source string `yaml:"source"`

	// Path is the rule pack file or directory for the file source, or the
	// directory inside the repository for the git source.
	// Default: "rules"
	Path string `yaml:"path"`

	// Watch enables hot reload when rule files change on disk.
	// Only applies to the file source.
	// Default: true
	Watch bool `yaml:"watch"`

	// WatchDebounce is the quiet period after a file change before reloading.
	// Default: 100ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// RefreshSchedule is a cron expression (standard five-field syntax or
	// descriptors such as "@every 5m") for periodic refreshes. Empty
	// disables polling.
	// Default: "@every 5m"
	RefreshSchedule string `yaml:"refresh_schedule"`

	// RefreshMinInterval is the minimum interval between explicit refresh
	// signals received over the API. Signals arriving faster are rejected.
	// Default: 1s
	RefreshMinInterval time.Duration `yaml:"refresh_min_interval"`

	// Git contains git source configuration.
	Git GitConfig `yaml:"git"`
}

// GitConfig contains configuration for loading rules from a Git repository.
type GitConfig struct {
	// Repository is the Git repository URL (HTTPS or SSH).
	Repository string `yaml:"repository"`

	// Branch is the branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Auth contains authentication configuration.
	Auth GitAuthConfig `yaml:"auth"`

	// Clone contains clone configuration.
	Clone GitCloneConfig `yaml:"clone"`

	// Timeout bounds clone and pull operations.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// GitAuthConfig contains Git authentication configuration.
type GitAuthConfig struct {
	// Type is the authentication type.
	// Valid values: "token", "ssh", "none"
	// Default: "none"
	Type string `yaml:"type"`

	// Token is the access token for HTTPS authentication.
	// Can be overridden by COMPASS_RULES_GIT_TOKEN.
	Token string `yaml:"token"`

	// SSHKeyPath is the path to the private key for SSH authentication.
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase is the passphrase of an encrypted SSH key.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// GitCloneConfig contains Git clone configuration.
type GitCloneConfig struct {
	// Depth is the clone depth. 0 clones the full history.
	// Default: 1
	Depth int `yaml:"depth"`

	// LocalPath is where the repository is cloned.
	// Default: "<tmp>/compass-rules"
	LocalPath string `yaml:"local_path"`

	// CleanOnStart removes an existing clone before cloning.
	// Default: false
	CleanOnStart bool `yaml:"clean_on_start"`
}

// EvaluationConfig contains configuration for the evaluation pipeline.
type EvaluationConfig struct {
	// TopN is the default number of recommendations returned per context.
	// Default: 3
	TopN int `yaml:"top_n"`

	// MaxTopN caps the per-request top_n override.
	// Default: 20
	MaxTopN int `yaml:"max_top_n"`

	// ConditionTimeout bounds the evaluation of a single rule condition.
	// A timed-out condition excludes its rule for the evaluation cycle.
	// Default: 50ms
	ConditionTimeout time.Duration `yaml:"condition_timeout"`

	// MaxConcurrency bounds how many contexts of one batch are evaluated
	// in parallel.
	// Default: 8
	MaxConcurrency int `yaml:"max_concurrency"`

	// MaxBatchSize caps the number of contexts in one Evaluate request.
	// Default: 500
	MaxBatchSize int `yaml:"max_batch_size"`

	// CELCostLimit caps the runtime cost of a single CEL condition.
	// Default: 100000
	CELCostLimit uint64 `yaml:"cel_cost_limit"`
}

// CacheConfig contains configuration for the recommendation cache.
type CacheConfig struct {
	// Enabled turns caching on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the cache implementation.
	// Valid values: "memory", "redis"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// TTL is how long a cached ranking stays valid.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries caps the memory backend. The least recently used entry is
	// evicted when the cache is full.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// Redis contains redis backend configuration.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains connection settings for the redis cache backend.
type RedisConfig struct {
	// Address is the redis server address.
	// Default: "localhost:6379"
	Address string `yaml:"address"`

	// Password authenticates to redis.
	// Can be overridden by COMPASS_CACHE_REDIS_PASSWORD.
	Password string `yaml:"password"`

	// DB selects the redis database.
	// Default: 0
	DB int `yaml:"db"`

	// KeyPrefix namespaces all keys written by Compass.
	// Default: "compass:"
	KeyPrefix string `yaml:"key_prefix"`

	// DialTimeout bounds connection establishment.
	// Default: 2s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// OperationTimeout bounds a single cache operation.
	// Default: 500ms
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// LifecycleConfig contains configuration for recommendation state storage.
type LifecycleConfig struct {
	// Backend selects the store.
	// Valid values: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains sqlite store configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// AuditConfig contains configuration for the audit event store.
type AuditConfig struct {
	// Backend selects the store.
	// Valid values: "memory", "sqlite", "postgres"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains sqlite store configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL store configuration.
	Postgres PostgresConfig `yaml:"postgres"`

	// Retention contains audit retention configuration.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite database configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10 for audit, 1 for lifecycle
	MaxOpenConns int `yaml:"max_open_conns"`

	// BusyTimeout is how long to wait for a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL connection configuration.
type PostgresConfig struct {
	// Host is the database host.
	// Default: "localhost"
	Host string `yaml:"host"`

	// Port is the database port.
	// Default: 5432
	Port int `yaml:"port"`

	// Database is the database name.
	Database string `yaml:"database"`

	// User is the database user.
	User string `yaml:"user"`

	// Password is the database password.
	// Can be overridden by COMPASS_AUDIT_POSTGRES_PASSWORD.
	Password string `yaml:"password"`

	// SSLMode is the libpq sslmode.
	// Valid values: "disable", "require", "verify-ca", "verify-full"
	// Default: "require"
	SSLMode string `yaml:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`
}

// RetentionConfig contains audit retention configuration.
type RetentionConfig struct {
	// Days is how long audit events are kept. 0 keeps events forever.
	// Default: 0
	Days int `yaml:"days"`

	// PruneSchedule is the cron expression for pruning.
	// Default: "0 3 * * *" (daily at 3am)
	PruneSchedule string `yaml:"prune_schedule"`
}

// ExecutorConfig contains configuration for the action executor.
type ExecutorConfig struct {
	// Type selects the executor.
	// Valid values: "log", "webhook"
	// Default: "log"
	Type string `yaml:"type"`

	// Timeout is the default bound on a synchronous execution when the rule's
	// execution strategy does not set one.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Webhook contains webhook executor configuration.
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig contains configuration for the webhook executor.
type WebhookConfig struct {
	// URL receives actions whose type has no entry in Endpoints.
	URL string `yaml:"url"`

	// Endpoints maps action types to dedicated URLs.
	Endpoints map[string]string `yaml:"endpoints"`

	// Headers are added to every webhook request.
	Headers map[string]string `yaml:"headers"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format.
	// Valid values: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes source file and line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path metrics are exposed on.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "compass"
	Namespace string `yaml:"namespace"`

	// Subsystem is an optional second metric name prefix.
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled turns tracing on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "compass"
	ServiceName string `yaml:"service_name"`

	// Sampler selects the sampling strategy.
	// Valid values: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the sampling probability for the ratio sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds exporting a batch of spans.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	// Enabled exposes the health endpoints.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the liveness probe path.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the readiness probe path.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// VersionPath is the build information path.
	// Default: "/version"
	VersionPath string `yaml:"version_path"`

	// CheckTimeout bounds a single readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}
