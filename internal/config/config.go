package config

import (
	"encoding/json"
	"fmt"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/logger"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/bun"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/crew"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/sandbox"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

// Config represents the main crewd configuration
type Config struct {
	// HTTP API
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Persistence
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Redis    RedisConfig    `json:"redis" mapstructure:"redis"`

	// Tool scripts and the sandbox they run in
	Scripts bun.Config     `json:"scripts" mapstructure:"scripts"`
	Sandbox sandbox.Config `json:"sandbox" mapstructure:"sandbox"`

	// Crew engine process
	Crew crew.CommandConfig `json:"crew" mapstructure:"crew"`

	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`
	Telegram  TelegramConfig  `json:"telegram" mapstructure:"telegram"`
	Tools     ToolsConfig     `json:"tools" mapstructure:"tools"`
	Logging   logger.Config   `json:"logging" mapstructure:"logging"`
	Tracing   TracingConfig   `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string `json:"host" mapstructure:"host"`
	Port            int    `json:"port" mapstructure:"port"`
	ReadTimeout     int    `json:"read_timeout" mapstructure:"read_timeout"`         // seconds
	WriteTimeout    int    `json:"write_timeout" mapstructure:"write_timeout"`       // seconds; crews are slow
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
	RateLimit       int    `json:"rate_limit" mapstructure:"rate_limit"`             // requests per minute per client, 0 disables

	// TrustedProxies are addresses or CIDRs allowed to set X-Forwarded-For
	TrustedProxies []string `json:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds SQL store configuration
type DatabaseConfig struct {
	Driver       string `json:"driver" mapstructure:"driver"` // sqlite3, pgx
	DSN          string `json:"dsn" mapstructure:"dsn"`
	MaxOpenConns int    `json:"max_open_conns" mapstructure:"max_open_conns"`
	AutoMigrate  bool   `json:"auto_migrate" mapstructure:"auto_migrate"`
}

// RedisConfig holds the session cache configuration
type RedisConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Addr      string `json:"addr" mapstructure:"addr"`
	Password  string `json:"password" mapstructure:"password"`
	DB        int    `json:"db" mapstructure:"db"`
	KeyPrefix string `json:"key_prefix" mapstructure:"key_prefix"`
	TTL       int    `json:"ttl" mapstructure:"ttl"` // seconds
}

// SchedulerConfig holds cron scheduler configuration
type SchedulerConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	ReloadInterval int    `json:"reload_interval" mapstructure:"reload_interval"` // seconds, 0 disables
	Timezone       string `json:"timezone" mapstructure:"timezone"`
	RunTimeout     int    `json:"run_timeout" mapstructure:"run_timeout"` // seconds
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	BotToken string `json:"bot_token" mapstructure:"bot_token"`
}

// ToolsConfig holds tool access and extra manifests
type ToolsConfig struct {
	Allow     []string `json:"allow" mapstructure:"allow"`
	Deny      []string `json:"deny" mapstructure:"deny"`
	Manifests []string `json:"manifests" mapstructure:"manifests"`
}

// Policy returns the dispatch policy.
func (t ToolsConfig) Policy() *tool.Policy {
	return &tool.Policy{Allow: t.Allow, Deny: t.Deny}
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     30,
			WriteTimeout:    600,
			ShutdownTimeout: 30,
			RateLimit:       60,
			TrustedProxies:  []string{},
		},
		Database: DatabaseConfig{
			Driver:      "sqlite3",
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			KeyPrefix: "crewd",
			TTL:       300,
		},
		Scripts: bun.Config{
			Command: "bun",
			Env:     map[string]string{},
		},
		Sandbox: sandbox.DefaultConfig(),
		Crew: crew.CommandConfig{
			Env: map[string]string{},
		},
		Scheduler: SchedulerConfig{
			Enabled:        false,
			ReloadInterval: 300,
			Timezone:       "UTC",
			RunTimeout:     900,
		},
		Tools: ToolsConfig{
			Allow: []string{"*"},
			Deny:  []string{},
		},
		Logging: logger.DefaultConfig(),
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "crewd",
			SampleRatio: 1.0,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.Redis.Password = mask(c.Redis.Password)
	masked.Telegram.BotToken = mask(c.Telegram.BotToken)
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// Validate checks the settings required to serve.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "pgx" {
		return fmt.Errorf("invalid database driver %s (must be: sqlite3, pgx)", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Scripts.Dir == "" {
		return fmt.Errorf("scripts dir is required")
	}
	if c.Crew.Command == "" {
		return fmt.Errorf("crew command is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when telegram is enabled")
	}
	if err := sandbox.ValidateConfig(c.Sandbox); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	return nil
}
