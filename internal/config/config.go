// Package config handles the persistent configuration of the salt CLI.
//
// Configuration is stored as YAML at ~/.config/goastrosalt/config.yaml (or
// the platform equivalent returned by os.UserConfigDir).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appDir   = "goastrosalt"
	fileName = "config.yaml"
)

// Defaults for missing config fields.
const (
	// TODO: point DefaultBaseURL at the production API once it is public.
	DefaultBaseURL      = "http://localhost:8001"
	DefaultPollInterval = 10 * time.Second
	DefaultMaxRetries   = 5
)

// Config represents the CLI configuration file.
type Config struct {
	// BaseURL is the API base URL, without a trailing slash.
	BaseURL string `yaml:"base_url"`
	// PollInterval is the minimum time between progress queries.
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxRetries bounds reconnection attempts while tracking progress.
	MaxRetries int `yaml:"max_retries"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		PollInterval: DefaultPollInterval,
		MaxRetries:   DefaultMaxRetries,
	}
}

// Path returns the absolute path of the config file.
func Path() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine config directory: %w", err)
	}
	return filepath.Join(base, appDir, fileName), nil
}

// Load reads and parses the config file. If the file does not exist, the
// default config is returned. Defaults apply to any missing fields.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads and parses the config file at the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that all config values are valid.
func Validate(cfg *Config) error {
	if cfg.BaseURL == "" {
		return ValidationError{Field: "base_url", Message: "required field is empty"}
	}
	if strings.HasSuffix(cfg.BaseURL, "/") {
		return ValidationError{Field: "base_url", Message: "must not have a trailing slash"}
	}
	if cfg.PollInterval <= 0 {
		return ValidationError{Field: "poll_interval", Message: "must be positive"}
	}
	if cfg.MaxRetries < 0 {
		return ValidationError{Field: "max_retries", Message: "must not be negative"}
	}
	return nil
}
