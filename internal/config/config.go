// ABOUTME: Configuration loading and parsing for passgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete passgate configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Store        StoreConfig        `yaml:"store"`
	RelyingParty RelyingPartyConfig `yaml:"relying_party"`
	Registration RegistrationConfig `yaml:"registration"`
	Session      SessionConfig      `yaml:"session"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// StoreConfig holds the credential store configuration
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RelyingPartyConfig identifies this service to authenticators
type RelyingPartyConfig struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Origins []string `yaml:"origins"`
}

// RegistrationConfig holds ceremony timing and counter policy
type RegistrationConfig struct {
	Window time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	WindowRaw     string `yaml:"window"`
	CounterPolicy string `yaml:"counter_policy"`
}

// SessionConfig holds session token configuration
type SessionConfig struct {
	Secret   string        `yaml:"secret"`
	Duration time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DurationRaw string `yaml:"duration"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file leaves a field empty.
const (
	DefaultHTTPAddr  = ":8080"
	DefaultStorePath = "users.json"
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.RelyingParty.ID == "" {
		return fmt.Errorf("relying_party.id is required")
	}
	if c.RelyingParty.Name == "" {
		return fmt.Errorf("relying_party.name is required")
	}
	if len(c.RelyingParty.Origins) == 0 {
		return fmt.Errorf("relying_party.origins is required")
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session.secret must be at least 32 characters")
	}

	switch c.Registration.CounterPolicy {
	case "", "strict", "lenient":
	default:
		return fmt.Errorf("registration.counter_policy must be \"strict\" or \"lenient\", got %q", c.Registration.CounterPolicy)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Registration.WindowRaw != "" {
		cfg.Registration.Window, err = time.ParseDuration(cfg.Registration.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing registration window %q: %w", cfg.Registration.WindowRaw, err)
		}
	}

	if cfg.Session.DurationRaw != "" {
		cfg.Session.Duration, err = time.ParseDuration(cfg.Session.DurationRaw)
		if err != nil {
			return fmt.Errorf("parsing session duration %q: %w", cfg.Session.DurationRaw, err)
		}
	}

	return nil
}
