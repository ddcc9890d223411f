package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all sandbox configuration.
type Config struct {
	Sandbox SandboxConfig `toml:"sandbox" yaml:"sandbox"`
	Logging LogConfig     `toml:"logging" yaml:"logging"`
}

// SandboxConfig holds module runtime configuration.
type SandboxConfig struct {
	Root            string   `envconfig:"SANDBOX_MODULE_ROOT" toml:"root" yaml:"root" validate:"required"`
	Timeout         Duration `envconfig:"SANDBOX_TIMEOUT" toml:"timeout" yaml:"timeout" validate:"gte=0"`
	MaxCallStack    int      `envconfig:"SANDBOX_MAX_CALL_STACK" toml:"max_call_stack" yaml:"max_call_stack" validate:"gte=0"`
	Links           string   `envconfig:"SANDBOX_LINK_POLICY" toml:"links" yaml:"links" validate:"oneof=contain follow"`
	CaseInsensitive bool     `envconfig:"SANDBOX_CASE_INSENSITIVE" toml:"case_insensitive" yaml:"case_insensitive"`
	Include         []string `envconfig:"SANDBOX_INCLUDE" toml:"include" yaml:"include" validate:"min=1,dive,required"`
	Console         bool     `envconfig:"SANDBOX_CONSOLE" toml:"console" yaml:"console"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" toml:"development" yaml:"development"`
}

// Duration is a time.Duration written as "5s" in files and the environment.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

var validate = validator.New()

// Load builds the configuration from defaults, the optional file at path
// and then the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.merge(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// merge decodes the TOML or YAML file at path over c.
func (c *Config) merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Root:         ".",
			Timeout:      Duration(5 * time.Second),
			MaxCallStack: 1024,
			Links:        "contain",
			Include:      []string{"**/*.js", "**/*.mjs", "**/*.json"},
			Console:      true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
