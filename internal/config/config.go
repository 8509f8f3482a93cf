// ABOUTME: Configuration loading and parsing for the onboarding console and dev agent
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the default config location.
const EnvConfigPath = "COVEN_ONBOARD_CONFIG"

// Config represents the complete onboarding configuration
type Config struct {
	Console  ConsoleConfig  `yaml:"console" toml:"console"`
	Stream   StreamConfig   `yaml:"stream" toml:"stream"`
	Manifest ManifestConfig `yaml:"manifest" toml:"manifest"`
	Tools    ToolsConfig    `yaml:"tools" toml:"tools"`
	Agent    AgentConfig    `yaml:"agent" toml:"agent"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ConsoleConfig holds the agent service location and the active project
type ConsoleConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	ProjectID string `yaml:"project_id" toml:"project_id"`
}

// StreamConfig holds trace stream reconnect timing
type StreamConfig struct {
	RetryDelays []time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RetryDelaysRaw []string `yaml:"retry_delays" toml:"retry_delays"`
}

// ManifestConfig holds manifest fetch timing
type ManifestConfig struct {
	RetryDelays []time.Duration `yaml:"-" toml:"-"`
	Timeout     time.Duration   `yaml:"-" toml:"-"`

	RetryDelaysRaw []string `yaml:"retry_delays" toml:"retry_delays"`
	TimeoutRaw     string   `yaml:"timeout" toml:"timeout"`
}

// ToolsConfig holds the tool listing cache settings
type ToolsConfig struct {
	CacheTTL  time.Duration `yaml:"-" toml:"-"`
	CacheSize int           `yaml:"cache_size" toml:"cache_size"`

	CacheTTLRaw string `yaml:"cache_ttl" toml:"cache_ttl"`
}

// AgentConfig holds settings for the development agent service
type AgentConfig struct {
	HTTPAddr     string        `yaml:"http_addr" toml:"http_addr"`
	DatabasePath string        `yaml:"database_path" toml:"database_path"`
	PollInterval time.Duration `yaml:"-" toml:"-"`
	IdleTimeout  time.Duration `yaml:"-" toml:"-"`

	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
	IdleTimeoutRaw  string `yaml:"idle_timeout" toml:"idle_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and absent keys take their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// ResolvePath picks the config file location.
// Priority: flag value > COVEN_ONBOARD_CONFIG env var > XDG_CONFIG_HOME/coven/onboard.yaml > ~/.config/coven/onboard.yaml
// explicit reports whether the path was requested by the caller rather than defaulted.
func ResolvePath(flagPath string) (path string, explicit bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath, true
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "onboard.yaml", false
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "onboard.yaml"), false
}

// LoadOrDefault loads the resolved config file. A missing file at the default
// location yields Default(); a missing file that was asked for explicitly is an error.
func LoadOrDefault(flagPath string) (*Config, string, error) {
	path, explicit := ResolvePath(flagPath)
	if !explicit {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Default(), "", nil
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// DefaultDatabasePath returns the dev agent database location.
// Priority: XDG_DATA_HOME/coven/onboard.db > ~/.local/share/coven/onboard.db
func DefaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "onboard.db"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven", "onboard.db")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Console.BaseURL == "" {
		cfg.Console.BaseURL = "http://127.0.0.1:8090"
	}
	if len(cfg.Stream.RetryDelays) == 0 {
		cfg.Stream.RetryDelays = []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second}
	}
	if len(cfg.Manifest.RetryDelays) == 0 {
		cfg.Manifest.RetryDelays = []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}
	}
	if cfg.Manifest.Timeout == 0 {
		cfg.Manifest.Timeout = 15 * time.Second
	}
	if cfg.Tools.CacheTTL == 0 {
		cfg.Tools.CacheTTL = 5 * time.Minute
	}
	if cfg.Tools.CacheSize == 0 {
		cfg.Tools.CacheSize = 16
	}
	if cfg.Agent.HTTPAddr == "" {
		cfg.Agent.HTTPAddr = "127.0.0.1:8090"
	}
	if cfg.Agent.DatabasePath == "" {
		cfg.Agent.DatabasePath = DefaultDatabasePath()
	}
	if cfg.Agent.PollInterval == 0 {
		cfg.Agent.PollInterval = 100 * time.Millisecond
	}
	if cfg.Agent.IdleTimeout == 0 {
		cfg.Agent.IdleTimeout = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Console.BaseURL)
	if err != nil {
		return fmt.Errorf("console.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("console.base_url must use http or https scheme")
	}

	for _, d := range c.Stream.RetryDelays {
		if d < 0 {
			return fmt.Errorf("stream.retry_delays must not be negative")
		}
	}
	for _, d := range c.Manifest.RetryDelays {
		if d < 0 {
			return fmt.Errorf("manifest.retry_delays must not be negative")
		}
	}
	if c.Manifest.Timeout < 0 {
		return fmt.Errorf("manifest.timeout must not be negative")
	}

	if c.Tools.CacheTTL < 0 {
		return fmt.Errorf("tools.cache_ttl must not be negative")
	}
	if c.Tools.CacheSize < 0 {
		return fmt.Errorf("tools.cache_size must not be negative")
	}

	if c.Agent.PollInterval < 0 {
		return fmt.Errorf("agent.poll_interval must not be negative")
	}
	if c.Agent.IdleTimeout < 0 {
		return fmt.Errorf("agent.idle_timeout must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Stream.RetryDelays, err = parseDurationList("stream.retry_delays", cfg.Stream.RetryDelaysRaw); err != nil {
		return err
	}
	if cfg.Manifest.RetryDelays, err = parseDurationList("manifest.retry_delays", cfg.Manifest.RetryDelaysRaw); err != nil {
		return err
	}

	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"manifest.timeout", cfg.Manifest.TimeoutRaw, &cfg.Manifest.Timeout},
		{"tools.cache_ttl", cfg.Tools.CacheTTLRaw, &cfg.Tools.CacheTTL},
		{"agent.poll_interval", cfg.Agent.PollIntervalRaw, &cfg.Agent.PollInterval},
		{"agent.idle_timeout", cfg.Agent.IdleTimeoutRaw, &cfg.Agent.IdleTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		*f.dst, err = time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
	}

	return nil
}

// parseDurationList parses each entry of a raw delay schedule.
func parseDurationList(name string, raw []string) ([]time.Duration, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]time.Duration, 0, len(raw))
	for i, s := range raw {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("parsing %s[%d] %q: %w", name, i, s, err)
		}
		out = append(out, d)
	}
	return out, nil
}
