package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override config keys.
// NOTEALARM_SCHEDULER__TICK_SECONDS sets scheduler.tick_seconds.
const EnvPrefix = "NOTEALARM_"

type Config struct {
	Timezone  string          `koanf:"timezone"` // IANA name times are shown in; empty means the host zone
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Telegram  TelegramConfig  `koanf:"telegram"`
	AI        AIConfig        `koanf:"ai"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	MCP       MCPConfig       `koanf:"mcp"`
}

type DatabaseConfig struct {
	URI string `koanf:"uri"`
}

type CacheConfig struct {
	Path string `koanf:"path"`
}

type TelegramConfig struct {
	Token string `koanf:"token"`
}

type AIConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

type SchedulerConfig struct {
	TickSeconds int    `koanf:"tick_seconds"` // upper bound on the delivery loop's sleep
	Permission  string `koanf:"permission"`   // granted, denied or undetermined
}

type ReconcileConfig struct {
	IntervalSeconds int `koanf:"interval_seconds"`
}

type TelemetryConfig struct {
	Stdout bool `koanf:"stdout"`
}

type MCPConfig struct {
	DefaultUser string `koanf:"default_user"` // used when a tool call names no user
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"timezone": "",
		"database": map[string]interface{}{
			"uri": "",
		},
		"cache": map[string]interface{}{
			"path": "notealarm-cache.db",
		},
		"telegram": map[string]interface{}{
			"token": "",
		},
		"ai": map[string]interface{}{
			"api_key":  "",
			"base_url": "https://openrouter.ai/api/v1",
			"model":    "openai/gpt-4o-mini",
		},
		"scheduler": map[string]interface{}{
			"tick_seconds": 60,
			"permission":   "undetermined",
		},
		"reconcile": map[string]interface{}{
			"interval_seconds": 300,
		},
		"telemetry": map[string]interface{}{
			"stdout": false,
		},
		"mcp": map[string]interface{}{
			"default_user": "",
		},
	}
}

// Load reads configuration from, in increasing precedence: built-in
// defaults, the YAML file named by NOTEALARM_CONFIG, NOTEALARM_* variables
// and the plain variables the bot has always used (DATABASE_URI,
// TELEGRAM_TOKEN, AI_API_KEY, AI_BASE_URL, AI_MODEL).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	for envVar, key := range map[string]string{
		"DATABASE_URI":   "database.uri",
		"TELEGRAM_TOKEN": "telegram.token",
		"AI_API_KEY":     "ai.api_key",
		"AI_BASE_URL":    "ai.base_url",
		"AI_MODEL":       "ai.model",
	} {
		if v := os.Getenv(envVar); v != "" {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the values every binary needs. Binaries with extra needs
// (the bot's token) check those themselves.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URI == "" {
		errs = append(errs, errors.New("database uri is required (set DATABASE_URI)"))
	}
	if c.Cache.Path == "" {
		errs = append(errs, errors.New("cache path is required"))
	}
	if c.Scheduler.TickSeconds <= 0 {
		errs = append(errs, errors.New("scheduler.tick_seconds must be positive"))
	}
	if c.Reconcile.IntervalSeconds <= 0 {
		errs = append(errs, errors.New("reconcile.interval_seconds must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("unknown timezone %q", c.Timezone))
	}
	switch c.Scheduler.Permission {
	case "granted", "denied", "undetermined":
	default:
		errs = append(errs, fmt.Errorf("unknown scheduler.permission %q", c.Scheduler.Permission))
	}
	return errors.Join(errs...)
}

// Location is the zone reminder times are read and shown in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// TickInterval is the delivery loop's maximum sleep.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}

// ReconcileInterval is the time between reconciliation passes.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalSeconds) * time.Second
}
