package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable that points at an optional config file.
const EnvConfigPath = "QUICKCOMM_CONFIG"

const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderClaude     = "claude"
	ProviderEinoGemini = "eino-gemini"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Chat        ChatConfig                `json:"chat" yaml:"chat"`
	Generation  GenerationConfig          `json:"generation" yaml:"generation"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Database    DatabaseConfig            `json:"database" yaml:"database"`
	Worker      WorkerConfig              `json:"worker" yaml:"worker"`
	Logging     LoggingConfig             `json:"logging" yaml:"logging"`
}

type BasicConfig struct {
	ServerAddress  string   `json:"server_address" yaml:"server_address"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitRPS   float64  `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst" yaml:"rate_limit_burst"`
}

type RedisConfig struct {
	URL               string `json:"url" yaml:"url"`
	Host              string `json:"host" yaml:"host"`
	Port              int    `json:"port" yaml:"port"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	DB                int    `json:"db" yaml:"db"`
	KeyPrefix         string `json:"key_prefix" yaml:"key_prefix"`
	SessionTTLSeconds int    `json:"session_ttl_seconds" yaml:"session_ttl_seconds"`
}

// ChatConfig bounds the stored transcript and each turn.
type ChatConfig struct {
	HistoryMax         int `json:"history_max" yaml:"history_max"`
	TurnTimeoutSeconds int `json:"turn_timeout_seconds" yaml:"turn_timeout_seconds"`
}

type GenerationConfig struct {
	Provider           string  `json:"provider" yaml:"provider"`
	MaxHistoryMessages int     `json:"max_history_messages" yaml:"max_history_messages"`
	MaxOutputTokens    int     `json:"max_output_tokens" yaml:"max_output_tokens"`
	Temperature        float32 `json:"temperature" yaml:"temperature"`
	TopP               float32 `json:"top_p" yaml:"top_p"`
	SystemPrompt       string  `json:"system_prompt" yaml:"system_prompt"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

// DatabaseConfig points at the FAQ knowledge base. An empty driver disables it.
type DatabaseConfig struct {
	Driver            string `json:"driver" yaml:"driver"`
	DSN               string `json:"dsn" yaml:"dsn"`
	FAQRefreshMinutes int    `json:"faq_refresh_minutes" yaml:"faq_refresh_minutes"`
}

type WorkerConfig struct {
	MinWorkers        int `json:"min_workers" yaml:"min_workers"`
	MaxWorkers        int `json:"max_workers" yaml:"max_workers"`
	QueueSize         int `json:"queue_size" yaml:"queue_size"`
	IdleTimeoutSecond int `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress: ":4000",
		},
		Redis: RedisConfig{
			Host:      "127.0.0.1",
			Port:      6379,
			KeyPrefix: "session:",
		},
		Chat: ChatConfig{
			HistoryMax: 200,
		},
		Generation: GenerationConfig{
			Provider:           ProviderGemini,
			MaxHistoryMessages: 20,
			MaxOutputTokens:    1024,
			Temperature:        0.7,
			TopP:               0.9,
		},
		Providers: map[string]ProviderConfig{
			ProviderGemini: {Model: "gemini-2.5-flash"},
		},
		Database: DatabaseConfig{
			FAQRefreshMinutes: 10,
		},
		Worker: WorkerConfig{
			MinWorkers:        2,
			MaxWorkers:        32,
			QueueSize:         256,
			IdleTimeoutSecond: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the provided path (falls back to $QUICKCOMM_CONFIG,
// then to defaults only) and applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("open config %s: %w", absPath, err)
	}

	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}

	if isSQLite(cfg.Database.Driver) && isRelativeFileDSN(cfg.Database.DSN) {
		cfg.Database.DSN = filepath.Join(filepath.Dir(absPath), cfg.Database.DSN)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	seconds := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	float := func(key string, dst *float64) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}

	if port, ok := os.LookupEnv("SERVER_PORT"); ok && strings.TrimSpace(port) != "" {
		cfg.BasicConfig.ServerAddress = ":" + strings.TrimSpace(port)
	}
	str("SERVER_ADDRESS", &cfg.BasicConfig.ServerAddress)
	if origins := originsFromEnv(); len(origins) > 0 {
		cfg.BasicConfig.AllowedOrigins = origins
	}
	float("RATE_LIMIT_RPS", &cfg.BasicConfig.RateLimitRPS)
	num("RATE_LIMIT_BURST", &cfg.BasicConfig.RateLimitBurst)

	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_HOST", &cfg.Redis.Host)
	num("REDIS_PORT", &cfg.Redis.Port)
	str("REDIS_USERNAME", &cfg.Redis.Username)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	str("REDIS_KEY_PREFIX", &cfg.Redis.KeyPrefix)
	seconds("SESSION_TTL", &cfg.Redis.SessionTTLSeconds)

	num("HISTORY_MAX", &cfg.Chat.HistoryMax)
	seconds("TURN_TIMEOUT", &cfg.Chat.TurnTimeoutSeconds)

	str("LLM_PROVIDER", &cfg.Generation.Provider)
	num("MAX_HISTORY_MESSAGES", &cfg.Generation.MaxHistoryMessages)
	num("MAX_OUTPUT_TOKENS", &cfg.Generation.MaxOutputTokens)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	gemini := cfg.Providers[ProviderGemini]
	str("GEMINI_API_KEY", &gemini.APIKey)
	str("GEMINI_MODEL", &gemini.Model)
	cfg.Providers[ProviderGemini] = gemini

	active := cfg.Providers[cfg.Generation.Provider]
	str("LLM_API_KEY", &active.APIKey)
	str("LLM_MODEL", &active.Model)
	str("LLM_BASE_URL", &active.BaseURL)
	cfg.Providers[cfg.Generation.Provider] = active

	str("DATABASE_DRIVER", &cfg.Database.Driver)
	str("DATABASE_DSN", &cfg.Database.DSN)

	num("WORKER_MIN", &cfg.Worker.MinWorkers)
	num("WORKER_MAX", &cfg.Worker.MaxWorkers)
	num("WORKER_QUEUE_SIZE", &cfg.Worker.QueueSize)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}

// originsFromEnv merges ALLOWED_ORIGINS (comma separated) and VITE_FRONTEND_URL.
func originsFromEnv() []string {
	var origins []string
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("VITE_FRONTEND_URL")); v != "" {
		origins = append(origins, v)
	}
	return origins
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = def.BasicConfig.ServerAddress
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = def.Redis.KeyPrefix
	}
	if c.Chat.HistoryMax == 0 {
		c.Chat.HistoryMax = def.Chat.HistoryMax
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = def.Generation.Provider
	}
	if c.Generation.MaxHistoryMessages == 0 {
		c.Generation.MaxHistoryMessages = def.Generation.MaxHistoryMessages
	}
	if c.Generation.MaxOutputTokens == 0 {
		c.Generation.MaxOutputTokens = def.Generation.MaxOutputTokens
	}
	if c.Worker.MaxWorkers == 0 {
		c.Worker.MaxWorkers = def.Worker.MaxWorkers
	}
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = def.Worker.QueueSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if p, ok := c.Providers[ProviderGemini]; ok && p.Model == "" {
		p.Model = def.Providers[ProviderGemini].Model
		c.Providers[ProviderGemini] = p
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Chat.HistoryMax <= 0 {
		return errors.New("history_max must be positive")
	}
	if c.Generation.MaxHistoryMessages <= 0 {
		return errors.New("max_history_messages must be positive")
	}
	if c.Generation.MaxOutputTokens <= 0 {
		return errors.New("max_output_tokens must be positive")
	}
	switch c.Generation.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderClaude, ProviderEinoGemini:
	default:
		return fmt.Errorf("unsupported provider: %s", c.Generation.Provider)
	}
	if c.Worker.MinWorkers < 0 || c.Worker.MaxWorkers <= 0 {
		return errors.New("worker pool sizes must be positive")
	}
	if c.Worker.MinWorkers > c.Worker.MaxWorkers {
		return fmt.Errorf("min_workers (%d) exceeds max_workers (%d)", c.Worker.MinWorkers, c.Worker.MaxWorkers)
	}
	if c.Redis.SessionTTLSeconds < 0 || c.Chat.TurnTimeoutSeconds < 0 {
		return errors.New("durations cannot be negative")
	}
	if c.Database.Driver != "" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn must be provided for driver %s", c.Database.Driver)
	}
	return nil
}

// ActiveProvider returns the settings of the selected generation provider.
func (c *Config) ActiveProvider() ProviderConfig {
	return c.Providers[c.Generation.Provider]
}

func (r RedisConfig) SessionTTL() time.Duration {
	return time.Duration(r.SessionTTLSeconds) * time.Second
}

func (c ChatConfig) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}

func (d DatabaseConfig) FAQRefreshInterval() time.Duration {
	return time.Duration(d.FAQRefreshMinutes) * time.Minute
}

func (w WorkerConfig) IdleTimeout() time.Duration {
	return time.Duration(w.IdleTimeoutSecond) * time.Second
}

// parseSeconds accepts either a Go duration ("90s", "24h") or a bare number of seconds.
func parseSeconds(v string) (int, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	return int(d / time.Second), nil
}

func isSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

func isRelativeFileDSN(dsn string) bool {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return false
	}
	return !filepath.IsAbs(dsn)
}
