package config

import (
	"fmt"
	"net/netip"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/sandbox"
)

var telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}

	// Telegram bot tokens have format: <bot_id>:<token>
	if !telegramTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}

	return nil
}

// ValidateDatabase validates the driver and DSN pairing
func (v *Validator) ValidateDatabase(db DatabaseConfig) error {
	switch db.Driver {
	case "sqlite3":
		if db.DSN == "" {
			return fmt.Errorf("database dsn cannot be empty")
		}
	case "pgx":
		if !strings.HasPrefix(db.DSN, "postgres://") && !strings.HasPrefix(db.DSN, "postgresql://") {
			return fmt.Errorf("pgx dsn must be a postgres:// URL")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be one of: sqlite3, pgx)", db.Driver)
	}
	if db.MaxOpenConns < 0 {
		return fmt.Errorf("database max_open_conns must be >= 0")
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateTrustedProxy validates a proxy address or CIDR
func (v *Validator) ValidateTrustedProxy(entry string) error {
	entry = strings.TrimSpace(entry)
	if _, err := netip.ParsePrefix(entry); err == nil {
		return nil
	}
	if _, err := netip.ParseAddr(entry); err == nil {
		return nil
	}
	return fmt.Errorf("invalid trusted proxy %q (want an address or CIDR)", entry)
}

// ValidateTimezone validates an IANA timezone name
func (v *Validator) ValidateTimezone(tz string) error {
	if tz == "" {
		return nil // UTC
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid timezone: %s", tz)
	}
	return nil
}

// ValidateCronSchedule validates a standard five-field cron expression
func (v *Validator) ValidateCronSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateSampleRatio validates a trace sampling ratio
func (v *Validator) ValidateSampleRatio(ratio float64) error {
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("sample ratio must be between 0 and 1, got %f", ratio)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if slices.Contains(validLevels, level) {
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}
	if cfg.Server.RateLimit < 0 {
		errors = append(errors, fmt.Errorf("server rate_limit must be >= 0"))
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 || cfg.Server.ShutdownTimeout < 0 {
		errors = append(errors, fmt.Errorf("server timeouts must be >= 0"))
	}
	for _, proxy := range cfg.Server.TrustedProxies {
		if err := v.ValidateTrustedProxy(proxy); err != nil {
			errors = append(errors, fmt.Errorf("server: %w", err))
		}
	}

	if err := v.ValidateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.Addr == "" {
			errors = append(errors, fmt.Errorf("redis addr is required when redis is enabled"))
		}
		if cfg.Redis.TTL < 0 {
			errors = append(errors, fmt.Errorf("redis ttl must be >= 0"))
		}
	}

	if strings.TrimSpace(cfg.Scripts.Dir) == "" {
		errors = append(errors, fmt.Errorf("scripts dir is required"))
	}
	if strings.TrimSpace(cfg.Crew.Command) == "" {
		errors = append(errors, fmt.Errorf("crew command is required"))
	}
	if err := sandbox.ValidateConfig(cfg.Sandbox); err != nil {
		errors = append(errors, fmt.Errorf("sandbox: %w", err))
	}

	if cfg.Scheduler.Enabled {
		if err := v.ValidateTimezone(cfg.Scheduler.Timezone); err != nil {
			errors = append(errors, fmt.Errorf("scheduler: %w", err))
		}
		if cfg.Scheduler.ReloadInterval < 0 {
			errors = append(errors, fmt.Errorf("scheduler reload_interval must be >= 0"))
		}
	}

	if cfg.Telegram.Enabled {
		if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
			errors = append(errors, err)
		}
	}

	for i, name := range cfg.Tools.Manifests {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, fmt.Errorf("tools manifest %d: path is required", i))
		}
	}

	if cfg.Tracing.Enabled {
		if err := v.ValidateSampleRatio(cfg.Tracing.SampleRatio); err != nil {
			errors = append(errors, fmt.Errorf("tracing: %w", err))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
