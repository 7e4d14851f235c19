// Package config loads aguichat settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nikhilthomas300/myCompanion/internal/logging"
)

// Environment variables that override file settings.
const (
	EnvBaseURL  = "AGUI_BASE_URL"
	EnvLogLevel = "AGUI_LOG_LEVEL"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds client settings from config.yaml.
type Config struct {
	Headers        map[string]string `yaml:"headers"`
	BaseURL        string            `yaml:"base_url"`
	RunPath        string            `yaml:"run_path"`
	HealthPath     string            `yaml:"health_path"`
	LogLevel       string            `yaml:"log_level"`
	HistoryFile    string            `yaml:"history_file"`
	MarkdownStyle  string            `yaml:"markdown_style"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	Markdown       bool              `yaml:"markdown"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	return &Config{
		BaseURL:        "http://localhost:8000",
		RunPath:        "/ag-ui/run",
		HealthPath:     "/ag-ui/health",
		LogLevel:       "info",
		RequestTimeout: 30 * time.Second,
		Markdown:       true,
		MarkdownStyle:  "auto",
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/aguichat/config.yaml, falling back
// to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "aguichat", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "aguichat", "config.yaml")
}

// Load reads the config at path, or DefaultPath when path is empty.
// Returns the default config if the file doesn't exist. Keys missing from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	config := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if config.HistoryFile != "" {
		config.HistoryFile = expandHome(config.HistoryFile)
	}
	return config, nil
}

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
}

// Validate checks that the config can be used to build a client.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base_url %q must be an http(s) URL", ErrInvalid, c.BaseURL)
	}
	if !strings.HasPrefix(c.RunPath, "/") {
		return fmt.Errorf("%w: run_path %q must start with /", ErrInvalid, c.RunPath)
	}
	if c.HealthPath != "" && !strings.HasPrefix(c.HealthPath, "/") {
		return fmt.Errorf("%w: health_path %q must start with /", ErrInvalid, c.HealthPath)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: request_timeout must not be negative", ErrInvalid)
	}
	switch c.MarkdownStyle {
	case "", "auto", "dark", "light", "notty":
	default:
		return fmt.Errorf("%w: markdown_style %q must be auto, dark, light or notty", ErrInvalid, c.MarkdownStyle)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
