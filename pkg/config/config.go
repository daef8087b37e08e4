package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all chatline configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Usage    UsageConfig    `yaml:"usage"`
	Log      LogConfig      `yaml:"log"`
}

// ProviderConfig defines the upstream completion provider.
// APIKey is only ever read from the OPENAI_API_KEY environment variable.
type ProviderConfig struct {
	URL               string        `yaml:"url" env:"CHATLINE_BASE_URL"`
	APIKey            string        `yaml:"-" env:"OPENAI_API_KEY"`
	Model             string        `yaml:"model" env:"CHATLINE_MODEL"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// CacheConfig controls the in-memory response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// DispatchConfig controls how the chat front-end calls the dispatcher.
type DispatchConfig struct {
	SystemPrompt string        `yaml:"system_prompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// UsageConfig controls the optional token usage ledger.
type UsageConfig struct {
	Enabled   bool          `yaml:"enabled"`
	DBPath    string        `yaml:"db_path"`
	Retention time.Duration `yaml:"retention"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `yaml:"level" env:"CHATLINE_LOG_LEVEL"`
	File  string `yaml:"file"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			URL:         "https://api.openai.com",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
			MaxTokens:   500,
			Timeout:     10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		Dispatch: DispatchConfig{
			Timeout: 15 * time.Second,
		},
		Usage: UsageConfig{
			Enabled:   false,
			DBPath:    "chatline.db",
			Retention: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and the environment.
// An empty path skips the file. Environment variables win over file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate rejects durations that would make every send fail or silently
// disable the cache.
func (c *Config) Validate() error {
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive, got %v", c.Provider.Timeout)
	}
	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("dispatch.timeout must be positive, got %v", c.Dispatch.Timeout)
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled, got %v", c.Cache.TTL)
	}
	return nil
}
