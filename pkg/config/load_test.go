package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compass.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: "20s"

rules:
  source: file
  path: ./rules
  watch: false
  refresh_schedule: "*/10 * * * *"

evaluation:
  top_n: 5
  condition_timeout: 25ms

cache:
  enabled: true
  backend: redis
  ttl: 1m
  redis:
    address: redis:6379

audit:
  backend: postgres
  postgres:
    database: compass
    user: compass
    ssl_mode: disable
  retention:
    days: 30

telemetry:
  logging:
    level: debug
    format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("Server.ListenAddress = %q, want %q", cfg.Server.ListenAddress, "0.0.0.0:9090")
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 20s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("Server.WriteTimeout = %v, want default %v", cfg.Server.WriteTimeout, DefaultWriteTimeout)
	}
	if cfg.Rules.Watch {
		t.Error("Rules.Watch = true, want false")
	}
	if cfg.Evaluation.TopN != 5 {
		t.Errorf("Evaluation.TopN = %d, want 5", cfg.Evaluation.TopN)
	}
	if cfg.Evaluation.ConditionTimeout != 25*time.Millisecond {
		t.Errorf("Evaluation.ConditionTimeout = %v, want 25ms", cfg.Evaluation.ConditionTimeout)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.Redis.Address != "redis:6379" {
		t.Errorf("Cache = %+v, want redis backend at redis:6379", cfg.Cache)
	}
	if cfg.Audit.Postgres.Port != DefaultPostgresPort {
		t.Errorf("Audit.Postgres.Port = %d, want %d", cfg.Audit.Postgres.Port, DefaultPostgresPort)
	}
	if cfg.Audit.Retention.PruneSchedule != DefaultRetentionSchedule {
		t.Errorf("Audit.Retention.PruneSchedule = %q, want %q", cfg.Audit.Retention.PruneSchedule, DefaultRetentionSchedule)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Telemetry.Logging.Level = %q, want debug", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig() error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [")
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("LoadConfig() error = %v, want parse error", err)
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
cache:
  backend: memcached
rules:
  source: svn
`)
	_, err := LoadConfig(path)

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("LoadConfig() error = %v, want ValidationError", err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2: %v", len(verr.Errors), verr)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8080"
`)

	t.Setenv("COMPASS_SERVER_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("COMPASS_EVALUATION_TOP_N", "4")
	t.Setenv("COMPASS_CACHE_TTL", "90s")
	t.Setenv("COMPASS_CACHE_ENABLED", "false")
	t.Setenv("COMPASS_RULES_GIT_TOKEN", "secret")
	t.Setenv("COMPASS_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("Server.ListenAddress = %q, want 0.0.0.0:7000", cfg.Server.ListenAddress)
	}
	if cfg.Evaluation.TopN != 4 {
		t.Errorf("Evaluation.TopN = %d, want 4", cfg.Evaluation.TopN)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("Cache.TTL = %v, want 90s", cfg.Cache.TTL)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled = true, want false")
	}
	if cfg.Rules.Git.Auth.Token != "secret" || cfg.Rules.Git.Auth.Type != "token" {
		t.Errorf("Rules.Git.Auth = %+v, want token auth", cfg.Rules.Git.Auth)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("Telemetry.Logging.Level = %q, want warn", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidOverride(t *testing.T) {
	path := writeConfig(t, "{}")
	t.Setenv("COMPASS_AUDIT_BACKEND", "mongodb")

	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Error("LoadConfigWithEnvOverrides() error = nil, want validation error")
	}
}
