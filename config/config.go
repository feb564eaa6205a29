// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentgate/agentgate/domain/ratelimit"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Logging    LoggingConfig   `yaml:"logging"`
	Auth       AuthConfig      `yaml:"auth"`
	Providers  ProvidersConfig `yaml:"providers"`
	History    HistoryConfig   `yaml:"history"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Tasks      TasksConfig     `yaml:"tasks"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// AuthConfig configures API key authentication.
type AuthConfig struct {
	Enabled   bool           `yaml:"enabled"`
	KeyPrefix string         `yaml:"key_prefix"`
	APIKeys   []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig declares one API key. Either the plaintext key or its
// SHA-256 hash must be set; plaintext entries are hashed at load.
type APIKeyConfig struct {
	KeyID   string `yaml:"key_id"`
	Name    string `yaml:"name"`
	Key     string `yaml:"key,omitempty"`
	KeyHash string `yaml:"key_hash,omitempty"`
	Status  string `yaml:"status"` // "active" or "revoked"
}

// ProvidersConfig configures the LLM backends.
type ProvidersConfig struct {
	Default   string         `yaml:"default"`
	OpenAI    ProviderConfig `yaml:"openai"`
	XAI       ProviderConfig `yaml:"xai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
}

// ProviderConfig configures one LLM backend. The API key comes from the
// provider's environment variable (OPENAI_API_KEY, XAI_API_KEY,
// ANTHROPIC_API_KEY) unless set here.
type ProviderConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key,omitempty"`
	BaseURL    string        `yaml:"base_url,omitempty"`
	MaxTokens  int64         `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	CostPer1K  float64       `yaml:"cost_per_1k_tokens"`
}

// HistoryConfig configures request/execution history storage.
type HistoryConfig struct {
	Backend       string        `yaml:"backend"` // "jsonl" or "sqlite"
	StorageDir    string        `yaml:"storage_dir"`
	DSN           string        `yaml:"dsn"`
	RetentionDays int           `yaml:"retention_days"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig configures the rate limiter: a default policy plus
// per-agent-scope overrides merged field by field.
type RateLimitConfig struct {
	Enabled         bool                        `yaml:"enabled"`
	CleanupInterval time.Duration               `yaml:"cleanup_interval"`
	Default         ratelimit.Policy            `yaml:"default"`
	Agents          map[string]ratelimit.Policy `yaml:"agents"`
}

// TasksConfig configures the async task manager.
type TasksConfig struct {
	MaxWorkers      int           `yaml:"max_workers"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for container deployments where no config file is mounted.
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falling back to environment
// variables when the file does not exist.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies AGENTGATE_* environment variables to the
// config. Environment variables always override file-based values.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("AGENTGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AGENTGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Logging configuration
	if v := os.Getenv("AGENTGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AGENTGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Auth configuration
	if v := os.Getenv("AGENTGATE_AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = parseBool(v)
	}
	if v := os.Getenv("AGENTGATE_AUTH_KEY_PREFIX"); v != "" {
		cfg.Auth.KeyPrefix = v
	}

	// Provider configuration
	if v := os.Getenv("AGENTGATE_DEFAULT_PROVIDER"); v != "" {
		cfg.Providers.Default = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("XAI_API_KEY"); v != "" && cfg.Providers.XAI.APIKey == "" {
		cfg.Providers.XAI.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Providers.Anthropic.APIKey == "" {
		cfg.Providers.Anthropic.APIKey = v
	}

	// History configuration
	if v := os.Getenv("AGENTGATE_HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = v
	}
	if v := os.Getenv("AGENTGATE_HISTORY_DIR"); v != "" {
		cfg.History.StorageDir = v
	}
	if v := os.Getenv("AGENTGATE_HISTORY_DSN"); v != "" {
		cfg.History.DSN = v
	}

	// Rate limit configuration
	if v := os.Getenv("AGENTGATE_RATELIMIT_ENABLED"); v != "" {
		cfg.RateLimits.Enabled = parseBool(v)
	}

	// Metrics configuration
	if v := os.Getenv("AGENTGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Research runs can take minutes; the write timeout must outlast
		// the slowest provider call.
		cfg.Server.WriteTimeout = 10 * time.Minute
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Auth.KeyPrefix == "" {
		cfg.Auth.KeyPrefix = "ak_"
	}

	if cfg.Providers.Default == "" {
		cfg.Providers.Default = "openai"
	}
	if cfg.Providers.OpenAI.Model == "" {
		cfg.Providers.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Providers.XAI.Model == "" {
		cfg.Providers.XAI.Model = "grok-2-latest"
	}
	if cfg.Providers.XAI.BaseURL == "" {
		cfg.Providers.XAI.BaseURL = "https://api.x.ai/v1"
	}
	if cfg.Providers.Anthropic.Model == "" {
		cfg.Providers.Anthropic.Model = "claude-sonnet-4-20250514"
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = "jsonl"
	}
	if cfg.History.StorageDir == "" {
		cfg.History.StorageDir = "data/history"
	}
	if cfg.History.DSN == "" {
		cfg.History.DSN = "data/agentgate.db"
	}
	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 30
	}
	if cfg.History.SweepInterval == 0 {
		cfg.History.SweepInterval = time.Hour
	}

	if cfg.RateLimits.CleanupInterval == 0 {
		cfg.RateLimits.CleanupInterval = 5 * time.Minute
	}

	if cfg.Tasks.MaxWorkers == 0 {
		cfg.Tasks.MaxWorkers = 2
	}
	if cfg.Tasks.TTL == 0 {
		cfg.Tasks.TTL = time.Hour
	}
	if cfg.Tasks.CleanupInterval == 0 {
		cfg.Tasks.CleanupInterval = 30 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys is required when auth.enabled is true")
	}
	for i, k := range cfg.Auth.APIKeys {
		if k.KeyID == "" {
			return fmt.Errorf("auth.api_keys[%d].key_id is required", i)
		}
		if k.Key == "" && k.KeyHash == "" {
			return fmt.Errorf("auth.api_keys[%d] requires key or key_hash", i)
		}
		if k.Status != "" && k.Status != "active" && k.Status != "revoked" {
			return fmt.Errorf("auth.api_keys[%d].status must be 'active' or 'revoked', got %q", i, k.Status)
		}
	}

	validProviders := map[string]bool{"openai": true, "xai": true, "anthropic": true}
	if !validProviders[cfg.Providers.Default] {
		return fmt.Errorf("providers.default must be one of: openai, xai, anthropic, got %q", cfg.Providers.Default)
	}

	if cfg.History.Backend != "jsonl" && cfg.History.Backend != "sqlite" {
		return fmt.Errorf("history.backend must be 'jsonl' or 'sqlite', got %q", cfg.History.Backend)
	}

	if cfg.Tasks.MaxWorkers < 1 {
		return fmt.Errorf("tasks.max_workers must be at least 1, got %d", cfg.Tasks.MaxWorkers)
	}

	return nil
}
