// Package config provides application configuration, persisted plugin
// settings, and live reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/plugstorm/internal/plugin"
)

// Config is the application configuration, loaded from a TOML file.
type Config struct {
	Plugins  PluginsConfig  `toml:"plugins"`
	Settings SettingsConfig `toml:"settings"`
	Logging  LoggingConfig  `toml:"logging"`
}

// PluginsConfig configures plugin discovery and lifecycle behavior.
type PluginsConfig struct {
	// Paths are the directories searched for Lua plugins.
	Paths []string `toml:"paths"`

	// AutoActivate activates plugins as they register.
	AutoActivate bool `toml:"auto_activate"`

	// ResolveDependencies activates declared dependencies first.
	ResolveDependencies bool `toml:"resolve_dependencies"`

	// StrictDependencies fails on missing dependencies and protects
	// plugins that others depend on.
	StrictDependencies bool `toml:"strict_dependencies"`

	// Disabled lists plugin ids registered but kept inactive.
	Disabled []string `toml:"disabled"`
}

// SettingsConfig configures the persisted plugin settings store.
type SettingsConfig struct {
	// Path is the JSON settings file. Empty keeps settings in memory.
	Path string `toml:"path"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `toml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Plugins: PluginsConfig{
			AutoActivate:        true,
			ResolveDependencies: true,
			StrictDependencies:  false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "plugstorm.toml"
	}
	return filepath.Join(home, ".config", "plugstorm", "config.toml")
}

// Load reads a TOML config file over the defaults. A missing file is not
// an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// ManagerConfig converts the plugins section into manager configuration.
func (c *Config) ManagerConfig() plugin.ManagerConfig {
	return plugin.ManagerConfig{
		AutoActivate:        c.Plugins.AutoActivate,
		ResolveDependencies: c.Plugins.ResolveDependencies,
		StrictDependencies:  c.Plugins.StrictDependencies,
	}
}
