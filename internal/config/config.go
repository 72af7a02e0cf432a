// Package config handles client configuration loading for Devika.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stitionai/devika-go/internal/appdir"
)

// DefaultServerURL is the backend address used when no configuration
// exists.
const DefaultServerURL = "http://127.0.0.1:1337"

// ServerConfig holds backend connection settings.
type ServerConfig struct {
	// URL is the backend base address.
	URL string `yaml:"url"`
	// ProbeInterval is the liveness probe period. Zero means the
	// built-in default.
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// LogConfig holds client-side logging settings.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`
	// File enables rotated file logging under the app directory.
	File bool `yaml:"file"`
	// JSON switches the log output to JSON lines.
	JSON bool `yaml:"json"`
}

// RenderConfig holds transcript rendering settings.
type RenderConfig struct {
	// Style is the syntax highlighting style for exported transcripts.
	Style string `yaml:"style"`
}

// Config represents the complete client configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Render RenderConfig `yaml:"render"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{URL: DefaultServerURL},
		Log:    LogConfig{Level: "info"},
		Render: RenderConfig{Style: "monokai"},
	}
}

// Load reads the configuration from the app directory's settings file.
// A missing file yields the defaults; a malformed file is an error.
// The DEVIKA_SERVER_URL environment variable overrides the configured
// backend address.
func Load() (*Config, error) {
	path, err := appdir.SettingsPath()
	if err != nil {
		return nil, err
	}
	return loadPath(path)
}

func loadPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if cfg.Server.URL == "" {
		cfg.Server.URL = DefaultServerURL
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Render.Style == "" {
		cfg.Render.Style = "monokai"
	}

	if env := os.Getenv("DEVIKA_SERVER_URL"); env != "" {
		cfg.Server.URL = env
	}
	return cfg, nil
}

// Save writes the configuration to the app directory's settings file.
func Save(cfg *Config) error {
	if err := appdir.EnsureDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path, err := appdir.SettingsPath()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
