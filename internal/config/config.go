package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models expertline.yml. Secrets (JWT signing key, drafting API key,
// payment callback secret) stay in the environment, never in the file.
type Config struct {
	Service struct {
		Name     string `yaml:"name"`
		BasePath string `yaml:"base_path"`
	} `yaml:"service"`
	Auth struct {
		AllowActorHeader bool `yaml:"allow_actor_header"`
	} `yaml:"auth"`
	Drafting struct {
		Provider     string `yaml:"provider"`
		Model        string `yaml:"model"`
		ResponsesURL string `yaml:"responses_url"`
	} `yaml:"drafting"`
	Booking struct {
		DefaultDurationMins int    `yaml:"default_duration_mins"`
		DefaultCurrency     string `yaml:"default_currency"`
	} `yaml:"booking"`
	Matching struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	} `yaml:"matching"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("config.service.name is required")
	}
	if c.Booking.DefaultDurationMins <= 0 {
		return fmt.Errorf("config.booking.default_duration_mins must be positive")
	}
	if c.Booking.DefaultCurrency == "" {
		return fmt.Errorf("config.booking.default_currency is required")
	}
	if c.Matching.DefaultLimit <= 0 {
		return fmt.Errorf("config.matching.default_limit must be positive")
	}
	if c.Matching.MaxLimit < c.Matching.DefaultLimit {
		return fmt.Errorf("config.matching.max_limit must be >= default_limit")
	}
	if c.Drafting.Provider != "" && c.Drafting.Provider != "openai" {
		return fmt.Errorf("config.drafting.provider %s not supported", c.Drafting.Provider)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "expertline.yml")
}

// Load reads and validates config from the workspace, falling back to
// defaults when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Absent sections
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML for `xl config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `service:
  name: expertline
  base_path: /v1

auth:
  allow_actor_header: false

drafting:
  provider: openai
  model: gpt-4o-mini
  responses_url: https://api.openai.com/v1/responses

booking:
  default_duration_mins: 60
  default_currency: USD

matching:
  default_limit: 5
  max_limit: 20
`
