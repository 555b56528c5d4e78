package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Source      EndpointConfig  `toml:"source"`
	Destination EndpointConfig  `toml:"destination"`
	Migration   MigrationConfig `toml:"migration"`
	Database    DatabaseConfig  `toml:"database"`
	Telemetry   TelemetryConfig `toml:"telemetry"`
	Log         LogConfig       `toml:"log"`
}

// EndpointConfig describes a project on one tracking backend instance.
//
// URL and Project may be left empty and supplied by flags or prompts.
type EndpointConfig struct {
	URL     string `toml:"url" validate:"omitempty,url"`
	Project string `toml:"project"`
	Token   string `toml:"token"`
	Auth    string `toml:"auth" validate:"omitempty,oneof=pat bearer none"`
}

// MigrationConfig tunes the transfer engine.
type MigrationConfig struct {
	Concurrency    int     `toml:"concurrency" validate:"min=1,max=64"`
	RateLimit      float64 `toml:"rate_limit" validate:"gt=0"`
	LinkStrategy   string  `toml:"link_strategy" validate:"oneof=mapping lookup"`
	OnError        string  `toml:"on_error" validate:"oneof=abort continue"`
	MaxRetries     int     `toml:"max_retries" validate:"min=0,max=10"`
	TimeoutSeconds int     `toml:"timeout_seconds" validate:"min=1"`
}

// DatabaseConfig contains run journal database settings.
type DatabaseConfig struct {
	Enabled      bool   `toml:"enabled"`
	Path         string `toml:"path" validate:"required_if=Enabled true"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"min=0"`
	MaxIdleConns int    `toml:"max_idle_conns" validate:"min=0"`
}

// TelemetryConfig contains OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled      bool   `toml:"enabled"`
	Stdout       bool   `toml:"stdout"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
