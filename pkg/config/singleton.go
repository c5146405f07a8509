package config

import (
	"fmt"
	"sync/atomic"
)

// current is the process-wide configuration installed by the CLI.
var current atomic.Pointer[Config]

// GetConfig returns the installed configuration, or nil before SetConfig
// or ReloadConfig succeeded.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig installs cfg as the process-wide configuration.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// ReloadConfig loads path with environment overrides and installs the
// result. A file that fails to load or validate leaves the installed
// configuration untouched.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	current.Store(cfg)
	return nil
}

// MustGetConfig is GetConfig for callers that run after startup. It panics
// when no configuration is installed.
func MustGetConfig() *Config {
	cfg := current.Load()
	if cfg == nil {
		panic("config: no configuration installed")
	}
	return cfg
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
