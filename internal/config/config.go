// ABOUTME: Configuration loading for the convoy coordinator
// ABOUTME: Reads YAML or TOML, loads a sibling .env file, expands env vars and parses durations

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/2389/convoy-coordinator/internal/store"
)

// Config represents the complete coordinator configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Simulation SimulationConfig `yaml:"simulation" toml:"simulation"`
	Chat       ChatConfig       `yaml:"chat" toml:"chat"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Seed       SeedConfig       `yaml:"seed" toml:"seed"`
}

// DatabaseConfig selects the snapshot backend
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite | bolt | memory
	Path   string `yaml:"path" toml:"path"`
	Key    string `yaml:"key" toml:"key"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text, json
}

// SimulationConfig controls the artificial action delay
type SimulationConfig struct {
	Latency    time.Duration `yaml:"-" toml:"-"`
	LatencyRaw string        `yaml:"latency" toml:"latency"`
}

// ChatConfig contains chat ledger settings
type ChatConfig struct {
	// DuplicateWindow declines a repeated text from the same user to the
	// same convoy within the window. Zero, the default, disables it.
	DuplicateWindow    time.Duration `yaml:"-" toml:"-"`
	DuplicateWindowRaw string        `yaml:"duplicate_window" toml:"duplicate_window"`
}

// AuthConfig contains credential settings
type AuthConfig struct {
	// DemoPassword logs in any e-mail address. Empty disables it.
	DemoPassword string `yaml:"demo_password" toml:"demo_password"`
}

// SeedConfig controls the fallback demo dataset
type SeedConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			Path:   "~/.local/share/convoy/convoy.db",
			Key:    store.DefaultSnapshotKey,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Simulation: SimulationConfig{
			Latency:    300 * time.Millisecond,
			LatencyRaw: "300ms",
		},
		Auth: AuthConfig{
			DemoPassword: "demo",
		},
		Seed: SeedConfig{
			Enabled: true,
		},
	}
}

// DefaultPath returns the config location: CONVOY_CONFIG if set,
// otherwise ~/.config/convoy/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("CONVOY_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "convoy", "config.yaml")
}

// Load reads configuration from a YAML or TOML file, expands environment
// variables, parses durations, and validates the result.
// Keys missing from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// A .env next to the config may supply ${VAR} values.
	// Variables already in the environment win.
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, statErr := os.Stat(envPath); statErr == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML(path) {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.Database.Path = expandHome(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.Database.Path = expandHome(cfg.Database.Path)
		return cfg, nil
	}
	return Load(path)
}

// Write encodes cfg to path in the format implied by its extension,
// creating parent directories as needed.
func Write(path string, cfg *Config) error {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// expandHome replaces a leading ~ with the user's home directory
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

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverBolt:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for driver %q", c.Database.Driver)
		}
	case store.DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, bolt, memory", c.Database.Driver)
	}

	if c.Database.Key == "" {
		return fmt.Errorf("database.key is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Simulation.Latency < 0 {
		return fmt.Errorf("simulation.latency must not be negative")
	}
	if c.Chat.DuplicateWindow < 0 {
		return fmt.Errorf("chat.duplicate_window must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Simulation.LatencyRaw != "" {
		cfg.Simulation.Latency, err = time.ParseDuration(cfg.Simulation.LatencyRaw)
		if err != nil {
			return fmt.Errorf("parsing latency %q: %w", cfg.Simulation.LatencyRaw, err)
		}
	} else {
		cfg.Simulation.Latency = 0
	}

	if cfg.Chat.DuplicateWindowRaw != "" {
		cfg.Chat.DuplicateWindow, err = time.ParseDuration(cfg.Chat.DuplicateWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing duplicate_window %q: %w", cfg.Chat.DuplicateWindowRaw, err)
		}
	} else {
		cfg.Chat.DuplicateWindow = 0
	}

	return nil
}
