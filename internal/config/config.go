// Package config loads smartquery configuration from YAML with environment
// overrides. Environment variables win over file values so deployments can
// keep secrets out of the config file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all smartquery configuration.
type Config struct {
	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Planner configuration
	Planner PlannerConfig `yaml:"planner"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the intent-parsing LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// StorageConfig configures the MongoDB connection.
type StorageConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	ConnectTimeout string `yaml:"connect_timeout"`
}

// PlannerConfig tunes the orchestration of a single plan-and-execute run.
type PlannerConfig struct {
	MaxParallel    int    `yaml:"max_parallel"`
	ParseTimeout   string `yaml:"parse_timeout"`
	ExecuteTimeout string `yaml:"execute_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  "60s",
		},
		Storage: StorageConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "tracker",
			ConnectTimeout: "8s",
		},
		Planner: PlannerConfig{
			MaxParallel:    5,
			ParseTimeout:   "15s",
			ExecuteTimeout: "25s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides layers environment variables over the loaded config.
// Provider key precedence: GEMINI > ANTHROPIC > OPENAI (last one checked wins).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.Storage.URI = v
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		c.Storage.Database = v
	}
	// OPENAI_API_KEY sets only the key: openai is already the default
	// provider, and a file-configured provider should keep its choice.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.LLM.Provider = "anthropic"
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.LLM.Provider = "gemini"
	}
	if v := os.Getenv("SMARTQUERY_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SMARTQUERY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Provider returns the configured LLM provider name.
func (c *Config) Provider() string {
	return c.LLM.Provider
}

// LLMTimeout parses the LLM timeout string, defaulting to 60s.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// ConnectTimeout parses the storage connect timeout, defaulting to 8s.
func (c *Config) ConnectTimeout() time.Duration {
	return parseDuration(c.Storage.ConnectTimeout, 8*time.Second)
}

// ParseTimeout parses the intent-parse timeout, defaulting to 15s.
func (c *Config) ParseTimeout() time.Duration {
	return parseDuration(c.Planner.ParseTimeout, 15*time.Second)
}

// ExecuteTimeout parses the query-execution timeout, defaulting to 25s.
func (c *Config) ExecuteTimeout() time.Duration {
	return parseDuration(c.Planner.ExecuteTimeout, 25*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
