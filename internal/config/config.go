package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models actionline.yml.
type Config struct {
	User struct {
		ID string `yaml:"id"`
	} `yaml:"user"`
	Scheduling struct {
		DefaultDurationDays int `yaml:"default_duration_days"`
		MaxGraphDepth       int `yaml:"max_graph_depth"`
	} `yaml:"scheduling"`
	Categories map[string]struct {
		Description string `yaml:"description"`
	} `yaml:"categories"`
	Priorities []string `yaml:"priorities"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate with al config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.User.ID == "" {
		return fmt.Errorf("config.user.id is required")
	}
	if c.Scheduling.DefaultDurationDays <= 0 {
		return fmt.Errorf("config.scheduling.default_duration_days must be positive")
	}
	if c.Scheduling.MaxGraphDepth <= 0 {
		return fmt.Errorf("config.scheduling.max_graph_depth must be positive")
	}
	for _, p := range c.Priorities {
		if p == "" {
			return fmt.Errorf("config.priorities contains an empty entry")
		}
	}
	for name := range c.Categories {
		if name == "" {
			return fmt.Errorf("config.categories contains an empty category name")
		}
	}
	return nil
}

// HasPriority reports whether p is one of the configured priorities.
func (c *Config) HasPriority(p string) bool {
	for _, known := range c.Priorities {
		if known == p {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "actionline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(userID string) string {
	return fmt.Sprintf(defaultTemplate, userID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a user.
func Default(userID string) *Config {
	var cfg Config
	cfg.User.ID = userID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, userID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `user:
  id: %s

scheduling:
  default_duration_days: 5
  max_graph_depth: 20

categories:
  outreach:
    description: "Talking to customers, partners, or investors"
  build:
    description: "Shipping product or infrastructure"
  research:
    description: "Learning before committing"
  ops:
    description: "Keeping the lights on"

priorities: [low, medium, high, urgent]
`
