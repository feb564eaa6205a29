package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentgate/agentgate/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
server:
  port: 9000
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
	if cfg.Server.WriteTimeout != 10*time.Minute {
		t.Errorf("write timeout = %v, want 10m", cfg.Server.WriteTimeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Auth.KeyPrefix != "ak_" {
		t.Errorf("key prefix = %q", cfg.Auth.KeyPrefix)
	}
	if cfg.Providers.Default != "openai" {
		t.Errorf("default provider = %q", cfg.Providers.Default)
	}
	if cfg.Providers.XAI.BaseURL != "https://api.x.ai/v1" {
		t.Errorf("xai base url = %q", cfg.Providers.XAI.BaseURL)
	}
	if cfg.History.Backend != "jsonl" || cfg.History.RetentionDays != 30 {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.Tasks.MaxWorkers != 2 || cfg.Tasks.TTL != time.Hour {
		t.Errorf("tasks = %+v", cfg.Tasks)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
server:
  host: 127.0.0.1
  port: 8080
logging:
  level: debug
  format: console
auth:
  enabled: true
  api_keys:
    - key_id: dev
      name: developer
      key: ak_0123456789abcdef0123456789abcdef
      status: active
providers:
  default: anthropic
  anthropic:
    enabled: true
    model: claude-sonnet-4-20250514
    cost_per_1k_tokens: 0.003
rate_limits:
  enabled: true
  default:
    requests_per_minute: 10
    tokens_per_hour: 100000
    cost_per_day: 5.0
  agents:
    research:
      requests_per_minute: 2
history:
  backend: sqlite
  dsn: /tmp/agentgate.db
tasks:
  max_workers: 4
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Auth.Enabled || len(cfg.Auth.APIKeys) != 1 {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Providers.Anthropic.CostPer1K != 0.003 {
		t.Errorf("cost per 1k = %v", cfg.Providers.Anthropic.CostPer1K)
	}
	if !cfg.RateLimits.Enabled {
		t.Error("rate limits not enabled")
	}
	if cfg.RateLimits.Default.RequestsPerMinute == nil || *cfg.RateLimits.Default.RequestsPerMinute != 10 {
		t.Errorf("default policy = %+v", cfg.RateLimits.Default)
	}
	if cfg.RateLimits.Default.CostPerDay == nil || *cfg.RateLimits.Default.CostPerDay != 5.0 {
		t.Errorf("cost ceiling = %+v", cfg.RateLimits.Default)
	}
	override, ok := cfg.RateLimits.Agents["research"]
	if !ok || override.RequestsPerMinute == nil || *override.RequestsPerMinute != 2 {
		t.Errorf("research override = %+v", cfg.RateLimits.Agents)
	}
	if cfg.History.Backend != "sqlite" {
		t.Errorf("history backend = %q", cfg.History.Backend)
	}
	if cfg.Tasks.MaxWorkers != 4 {
		t.Errorf("max workers = %d", cfg.Tasks.MaxWorkers)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "server:\n  port: 99999\n"},
		{"bad log level", "logging:\n  level: verbose\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"auth without keys", "auth:\n  enabled: true\n"},
		{"key without id", "auth:\n  enabled: true\n  api_keys:\n    - name: x\n      key: ak_x\n"},
		{"key without secret", "auth:\n  enabled: true\n  api_keys:\n    - key_id: x\n"},
		{"bad key status", "auth:\n  enabled: true\n  api_keys:\n    - key_id: x\n      key: ak_x\n      status: paused\n"},
		{"bad provider", "providers:\n  default: gemini\n"},
		{"bad history backend", "history:\n  backend: postgres\n"},
		{"bad syntax", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Load(writeConfig(t, tt.yaml)); err == nil {
				t.Errorf("Load accepted invalid config:\n%s", tt.yaml)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load succeeded on a missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AGENTGATE_SERVER_PORT", "7777")
	t.Setenv("AGENTGATE_LOG_LEVEL", "warn")
	t.Setenv("AGENTGATE_RATELIMIT_ENABLED", "true")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := config.Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want env override 7777", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, want warn", cfg.Logging.Level)
	}
	if !cfg.RateLimits.Enabled {
		t.Error("rate limits not enabled via env")
	}
	if cfg.Providers.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("openai key = %q", cfg.Providers.OpenAI.APIKey)
	}
}

func TestLoad_FileKeyWinsOverEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := config.Load(writeConfig(t, `
providers:
  openai:
    api_key: sk-from-file
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-from-file" {
		t.Errorf("openai key = %q, want file value", cfg.Providers.OpenAI.APIKey)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AGENTGATE_SERVER_PORT", "8123")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("port = %d, want 8123", cfg.Server.Port)
	}
	if cfg.History.Backend != "jsonl" {
		t.Errorf("backend = %q, want jsonl default", cfg.History.Backend)
	}
}

func TestLoadWithFallback(t *testing.T) {
	// Existing file loads the file.
	path := writeConfig(t, minimalConfig)
	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback(file): %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000 from file", cfg.Server.Port)
	}

	// Missing file falls back to env/defaults.
	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback(missing): %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want default 8000", cfg.Server.Port)
	}
}

func TestLoad_ExpandsEnvInValues(t *testing.T) {
	t.Setenv("SECRET_KEY", "sk-expanded")

	cfg, err := config.Load(writeConfig(t, `
providers:
  openai:
    api_key: ${SECRET_KEY}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-expanded" {
		t.Errorf("api key = %q, want expanded env value", cfg.Providers.OpenAI.APIKey)
	}
}
