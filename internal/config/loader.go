package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "veristat.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "veristat.yml"

// envPrefix is the prefix for environment overrides, e.g.
// VERISTAT_SERVER_PORT=8080 maps to server.port.
const envPrefix = "VERISTAT_"

// Load builds the configuration from defaults, an optional config file in
// dir, and environment variables, in increasing precedence.
func Load(dir string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(dir); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q, must be sqlite or postgres", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the postgres driver")
	}
	if c.Render.MaxSessions <= 0 {
		return fmt.Errorf("render.max_sessions must be positive, got %d", c.Render.MaxSessions)
	}
	if c.Render.TimeoutSeconds <= 0 {
		return fmt.Errorf("render.timeout_seconds must be positive, got %d", c.Render.TimeoutSeconds)
	}
	return nil
}

// findConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func findConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}
