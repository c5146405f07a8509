package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = int64(4 << 20)
	DefaultRateLimitRPS    = 100.0
	DefaultRateLimitBurst  = 200

	// Rules defaults
	DefaultRulesSource             = "file"
	DefaultRulesPath               = "rules"
	DefaultRulesWatch              = true
	DefaultRulesWatchDebounce      = 100 * time.Millisecond
	DefaultRulesRefreshSchedule    = "@every 5m"
	DefaultRulesRefreshMinInterval = time.Second
	DefaultGitBranch               = "main"
	DefaultGitAuthType             = "none"
	DefaultGitCloneDepth           = 1
	DefaultGitTimeout              = 30 * time.Second

	// Evaluation defaults
	DefaultTopN             = 3
	DefaultMaxTopN          = 20
	DefaultConditionTimeout = 50 * time.Millisecond
	DefaultMaxConcurrency   = 8
	DefaultMaxBatchSize     = 500
	DefaultCELCostLimit     = uint64(100000)

	// Cache defaults
	DefaultCacheEnabled          = true
	DefaultCacheBackend          = "memory"
	DefaultCacheTTL              = 5 * time.Minute
	DefaultCacheMaxEntries       = 10000
	DefaultRedisAddress          = "localhost:6379"
	DefaultRedisKeyPrefix        = "compass:"
	DefaultRedisDialTimeout      = 2 * time.Second
	DefaultRedisOperationTimeout = 500 * time.Millisecond

	// Lifecycle defaults
	DefaultLifecycleBackend      = "sqlite"
	DefaultLifecycleSQLitePath   = "data/recommendations.db"
	DefaultLifecycleMaxOpenConns = 1

	// Audit defaults
	DefaultAuditBackend      = "sqlite"
	DefaultAuditSQLitePath   = "data/audit.db"
	DefaultAuditMaxOpenConns = 10
	DefaultSQLiteBusyTimeout = 5 * time.Second
	DefaultPostgresHost      = "localhost"
	DefaultPostgresPort      = 5432
	DefaultPostgresSSLMode   = "require"
	DefaultPostgresMaxConns  = 10
	DefaultRetentionDays     = 0
	DefaultRetentionSchedule = "0 3 * * *"

	// Executor defaults
	DefaultExecutorType    = "log"
	DefaultExecutorTimeout = 10 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "compass"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingService     = "compass"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingTimeout     = 10 * time.Second
	DefaultHealthEnabled      = true
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultVersionPath        = "/version"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// Boolean switches that default to true are only set when their section
// was left entirely unconfigured.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyRulesDefaults(&cfg.Rules)
	applyEvaluationDefaults(&cfg.Evaluation)
	applyCacheDefaults(&cfg.Cache)

	// Lifecycle defaults
	if cfg.Lifecycle.Backend == "" {
		cfg.Lifecycle.Backend = DefaultLifecycleBackend
	}
	applySQLiteDefaults(&cfg.Lifecycle.SQLite, DefaultLifecycleSQLitePath, DefaultLifecycleMaxOpenConns)

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	applySQLiteDefaults(&cfg.Audit.SQLite, DefaultAuditSQLitePath, DefaultAuditMaxOpenConns)
	pg := &cfg.Audit.Postgres
	if pg.Host == "" {
		pg.Host = DefaultPostgresHost
	}
	if pg.Port == 0 {
		pg.Port = DefaultPostgresPort
	}
	if pg.SSLMode == "" {
		pg.SSLMode = DefaultPostgresSSLMode
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = DefaultPostgresMaxConns
	}
	if cfg.Audit.Retention.PruneSchedule == "" {
		cfg.Audit.Retention.PruneSchedule = DefaultRetentionSchedule
	}

	// Executor defaults
	if cfg.Executor.Type == "" {
		cfg.Executor.Type = DefaultExecutorType
	}
	if cfg.Executor.Timeout == 0 {
		cfg.Executor.Timeout = DefaultExecutorTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.RateLimit.RequestsPerSecond == 0 {
		s.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if s.RateLimit.Burst == 0 {
		s.RateLimit.Burst = DefaultRateLimitBurst
	}
}

func applyRulesDefaults(r *RulesConfig) {
	if r.Source == "" {
		// Untouched section: file source with hot reload.
		r.Source = DefaultRulesSource
		if r.Path == "" {
			r.Watch = DefaultRulesWatch
		}
	}
	if r.Path == "" {
		r.Path = DefaultRulesPath
	}
	if r.WatchDebounce == 0 {
		r.WatchDebounce = DefaultRulesWatchDebounce
	}
	if r.RefreshSchedule == "" {
		r.RefreshSchedule = DefaultRulesRefreshSchedule
	}
	if r.RefreshMinInterval == 0 {
		r.RefreshMinInterval = DefaultRulesRefreshMinInterval
	}

	g := &r.Git
	if g.Branch == "" {
		g.Branch = DefaultGitBranch
	}
	if g.Auth.Type == "" {
		g.Auth.Type = DefaultGitAuthType
	}
	if g.Clone.Depth == 0 {
		g.Clone.Depth = DefaultGitCloneDepth
	}
	if g.Clone.LocalPath == "" {
		g.Clone.LocalPath = filepath.Join(os.TempDir(), "compass-rules")
	}
	if g.Timeout == 0 {
		g.Timeout = DefaultGitTimeout
	}
}

func applyEvaluationDefaults(e *EvaluationConfig) {
	if e.TopN == 0 {
		e.TopN = DefaultTopN
	}
	if e.MaxTopN == 0 {
		e.MaxTopN = DefaultMaxTopN
	}
	if e.ConditionTimeout == 0 {
		e.ConditionTimeout = DefaultConditionTimeout
	}
	if e.MaxConcurrency == 0 {
		e.MaxConcurrency = DefaultMaxConcurrency
	}
	if e.MaxBatchSize == 0 {
		e.MaxBatchSize = DefaultMaxBatchSize
	}
	if e.CELCostLimit == 0 {
		e.CELCostLimit = DefaultCELCostLimit
	}
}

func applyCacheDefaults(c *CacheConfig) {
	if c.Backend == "" {
		c.Backend = DefaultCacheBackend
		if c.TTL == 0 && c.MaxEntries == 0 {
			c.Enabled = DefaultCacheEnabled
		}
	}
	if c.TTL == 0 {
		c.TTL = DefaultCacheTTL
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultCacheMaxEntries
	}
	if c.Redis.Address == "" {
		c.Redis.Address = DefaultRedisAddress
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if c.Redis.OperationTimeout == 0 {
		c.Redis.OperationTimeout = DefaultRedisOperationTimeout
	}
}

func applySQLiteDefaults(s *SQLiteConfig, path string, maxOpen int) {
	if s.Path == "" {
		s.Path = path
	}
	if s.MaxOpenConns == 0 {
		s.MaxOpenConns = maxOpen
	}
	if s.BusyTimeout == 0 {
		s.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
		if t.Metrics.Namespace == "" && t.Metrics.Subsystem == "" {
			t.Metrics.Enabled = DefaultMetricsEnabled
		}
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}

	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingService
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}

	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
		if t.Health.ReadinessPath == "" && t.Health.VersionPath == "" {
			t.Health.Enabled = DefaultHealthEnabled
		}
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.VersionPath == "" {
		t.Health.VersionPath = DefaultVersionPath
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
