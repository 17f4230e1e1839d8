package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Chat.HistoryMax != 200 {
		t.Fatalf("history max default mismatch: %d", cfg.Chat.HistoryMax)
	}
	if cfg.Generation.MaxHistoryMessages != 20 || cfg.Generation.MaxOutputTokens != 1024 {
		t.Fatalf("generation defaults mismatch: %+v", cfg.Generation)
	}
	if cfg.Redis.KeyPrefix != "session:" {
		t.Fatalf("key prefix default mismatch: %q", cfg.Redis.KeyPrefix)
	}
	if cfg.Redis.SessionTTL() != 0 {
		t.Fatalf("expected no ttl by default, got %s", cfg.Redis.SessionTTL())
	}
}

func TestLoadJSONFileResolvesSQLitePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"basic_config": {"server_address": ":9000", "allowed_origins": ["http://localhost:5173"]},
		"chat": {"history_max": 50},
		"database": {"driver": "sqlite3", "dsn": "data/faq.db"},
		"providers": {"gemini": {"model": "gemini-2.0-flash", "api_key": "from-file"}}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" {
		t.Fatalf("server address mismatch: %s", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Chat.HistoryMax != 50 {
		t.Fatalf("history max mismatch: %d", cfg.Chat.HistoryMax)
	}
	if want := filepath.Join(dir, "data/faq.db"); cfg.Database.DSN != want {
		t.Fatalf("dsn not resolved against config dir: want %s got %s", want, cfg.Database.DSN)
	}
	if got := cfg.ActiveProvider().Model; got != "gemini-2.0-flash" {
		t.Fatalf("provider model mismatch: %s", got)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "generation:\n  provider: openai\n  max_history_messages: 8\nproviders:\n  openai:\n    model: gpt-4o-mini\n    api_key: sk-test\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Generation.Provider != ProviderOpenAI || cfg.Generation.MaxHistoryMessages != 8 {
		t.Fatalf("yaml generation mismatch: %+v", cfg.Generation)
	}
	if cfg.ActiveProvider().APIKey != "sk-test" {
		t.Fatalf("yaml provider not decoded: %+v", cfg.ActiveProvider())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("SERVER_PORT", "4100")
	t.Setenv("HISTORY_MAX", "10")
	t.Setenv("MAX_HISTORY_MESSAGES", "4")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("TURN_TIMEOUT", "45")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("GEMINI_MODEL", "gemini-test")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("VITE_FRONTEND_URL", "http://front.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":4100" {
		t.Fatalf("server port override failed: %s", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Chat.HistoryMax != 10 || cfg.Generation.MaxHistoryMessages != 4 {
		t.Fatalf("numeric overrides failed: %+v %+v", cfg.Chat, cfg.Generation)
	}
	if cfg.Redis.SessionTTL() != 2*time.Hour {
		t.Fatalf("ttl override failed: %s", cfg.Redis.SessionTTL())
	}
	if cfg.Chat.TurnTimeout() != 45*time.Second {
		t.Fatalf("turn timeout override failed: %s", cfg.Chat.TurnTimeout())
	}
	if p := cfg.ActiveProvider(); p.APIKey != "env-key" || p.Model != "gemini-test" {
		t.Fatalf("gemini overrides failed: %+v", p)
	}
	if cfg.Redis.URL != "redis://cache:6379/2" {
		t.Fatalf("redis url override failed: %s", cfg.Redis.URL)
	}
	if len(cfg.BasicConfig.AllowedOrigins) != 3 || cfg.BasicConfig.AllowedOrigins[2] != "http://front.example" {
		t.Fatalf("origins override failed: %v", cfg.BasicConfig.AllowedOrigins)
	}
}

func TestEnvOverrideInvalidNumber(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("HISTORY_MAX", "lots")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for non-numeric HISTORY_MAX")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative history": func(c *Config) { c.Chat.HistoryMax = -1 },
		"unknown provider": func(c *Config) { c.Generation.Provider = "mystery" },
		"min above max":    func(c *Config) { c.Worker.MinWorkers = 10; c.Worker.MaxWorkers = 2 },
		"driver w/o dsn":   func(c *Config) { c.Database.Driver = "mysql" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
