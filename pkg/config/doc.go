// Package config provides configuration management for Compass.
//
// Configuration is loaded from a YAML file, completed with defaults,
// overridden from the environment and validated as a whole:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("compass.yaml")
//
// Environment variables follow the naming convention COMPASS_SECTION_FIELD,
// for example COMPASS_SERVER_LISTEN_ADDRESS, COMPASS_CACHE_BACKEND or
// COMPASS_AUDIT_POSTGRES_PASSWORD. They always take precedence over the file.
//
// Validation collects every problem into a single ValidationError so that
// an operator can fix a configuration file in one pass.
//
// The CLI installs the loaded configuration with SetConfig so that it can be
// read back with GetConfig or MustGetConfig. Library packages receive their
// configuration section explicitly instead.
package config
