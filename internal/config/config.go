// ABOUTME: Configuration loading and parsing for nanobot-web
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Processor kinds
const (
	ProcessorEcho   = "echo"
	ProcessorOpenAI = "openai"
)

// Config represents the complete nanobot-web configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Settings  SettingsConfig  `yaml:"settings" toml:"settings"`
	Sessions  SessionsConfig  `yaml:"sessions" toml:"sessions"`
	Processor ProcessorConfig `yaml:"processor" toml:"processor"`
	Stream    StreamConfig    `yaml:"stream" toml:"stream"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig holds the turn ledger database location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SettingsConfig locates the channel settings document
type SettingsConfig struct {
	Path  string `yaml:"path" toml:"path"`
	Watch bool   `yaml:"watch" toml:"watch"`
}

// SessionsConfig holds the idle sweeper timing. A zero idle timeout keeps
// request/response sessions until shutdown.
type SessionsConfig struct {
	IdleTimeout   time.Duration `yaml:"-" toml:"-"`
	SweepInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	IdleTimeoutRaw   string `yaml:"idle_timeout" toml:"idle_timeout"`
	SweepIntervalRaw string `yaml:"sweep_interval" toml:"sweep_interval"`
}

// ProcessorConfig selects the message processor
type ProcessorConfig struct {
	Kind         string `yaml:"kind" toml:"kind"`
	Provider     string `yaml:"provider" toml:"provider"`
	SystemPrompt string `yaml:"system_prompt" toml:"system_prompt"`
	HistoryLimit int    `yaml:"history_limit" toml:"history_limit"`
}

// StreamConfig tunes duplex connections
type StreamConfig struct {
	FrameRate    float64       `yaml:"frame_rate" toml:"frame_rate"`
	FrameBurst   int           `yaml:"frame_burst" toml:"frame_burst"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a configuration that passes validation with no file at all.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:18080"},
		Database: DatabaseConfig{Path: "~/.nanobot/web.db"},
		Settings: SettingsConfig{Path: "~/.nanobot/config.json"},
		Sessions: SessionsConfig{
			SweepInterval:    time.Minute,
			SweepIntervalRaw: "1m",
		},
		Processor: ProcessorConfig{Kind: ProcessorOpenAI, HistoryLimit: 50},
		Stream: StreamConfig{
			WriteTimeout:    10 * time.Second,
			WriteTimeoutRaw: "10s",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Unset fields keep the values from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Settings.Path = ExpandHome(cfg.Settings.Path)
	cfg.Tailscale.StateDir = ExpandHome(cfg.Tailscale.StateDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// The HTTP address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Settings.Path == "" {
		return fmt.Errorf("settings.path is required")
	}

	switch c.Processor.Kind {
	case ProcessorEcho, ProcessorOpenAI:
	default:
		return fmt.Errorf("processor.kind must be %q or %q, got %q", ProcessorEcho, ProcessorOpenAI, c.Processor.Kind)
	}

	if c.Processor.HistoryLimit < 0 {
		return fmt.Errorf("processor.history_limit must not be negative")
	}

	if c.Sessions.IdleTimeout < 0 || c.Sessions.SweepInterval < 0 || c.Stream.WriteTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}

	if c.Stream.FrameRate < 0 || c.Stream.FrameBurst < 0 {
		return fmt.Errorf("stream.frame_rate and stream.frame_burst must not be negative")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.IdleTimeoutRaw != "" {
		cfg.Sessions.IdleTimeout, err = time.ParseDuration(cfg.Sessions.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Sessions.IdleTimeoutRaw, err)
		}
	}

	if cfg.Sessions.SweepIntervalRaw != "" {
		cfg.Sessions.SweepInterval, err = time.ParseDuration(cfg.Sessions.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Sessions.SweepIntervalRaw, err)
		}
	}

	if cfg.Stream.WriteTimeoutRaw != "" {
		cfg.Stream.WriteTimeout, err = time.ParseDuration(cfg.Stream.WriteTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing write_timeout %q: %w", cfg.Stream.WriteTimeoutRaw, err)
		}
	}

	return nil
}
