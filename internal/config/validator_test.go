package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTelegramToken(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTelegramToken("123456789:ABCdefGHIjklMNOpqrsTUVwxyz"))
	assert.Error(t, v.ValidateTelegramToken("invalid-token"))
	assert.Error(t, v.ValidateTelegramToken(""))
}

func TestValidateDatabase(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		db      DatabaseConfig
		wantErr bool
	}{
		{"sqlite", DatabaseConfig{Driver: "sqlite3", DSN: "/tmp/crewd.db"}, false},
		{"sqlite without dsn", DatabaseConfig{Driver: "sqlite3"}, true},
		{"postgres url", DatabaseConfig{Driver: "pgx", DSN: "postgres://u@h/db"}, false},
		{"postgres without url", DatabaseConfig{Driver: "pgx", DSN: "host=h"}, true},
		{"unknown driver", DatabaseConfig{Driver: "mysql", DSN: "x"}, true},
		{"negative pool", DatabaseConfig{Driver: "sqlite3", DSN: "x", MaxOpenConns: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateDatabase(tt.db)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTimezone(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTimezone(""))
	assert.NoError(t, v.ValidateTimezone("UTC"))
	assert.Error(t, v.ValidateTimezone("Mars/Olympus"))
}

func TestValidateCronSchedule(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateCronSchedule("*/5 * * * *"))
	assert.NoError(t, v.ValidateCronSchedule("@hourly"))
	assert.Error(t, v.ValidateCronSchedule("every tuesday"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
}

func TestValidateTrustedProxy(t *testing.T) {
	v := NewValidator()

	for _, entry := range []string{"10.0.0.1", "10.0.0.0/8", "::1", "fd00::/8"} {
		assert.NoError(t, v.ValidateTrustedProxy(entry), entry)
	}
	assert.Error(t, v.ValidateTrustedProxy("proxy.internal"))
	assert.Error(t, v.ValidateTrustedProxy("10.0.0.0/33"))
}

func TestValidatorValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("valid config", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(validConfig()))
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = 0
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = ""
		cfg.Telegram.Enabled = true
		cfg.Telegram.BotToken = "bad"
		cfg.Tracing.Enabled = true
		cfg.Tracing.SampleRatio = 2
		cfg.Logging.Level = "verbose"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 5)
	})

	t.Run("trusted proxies", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.TrustedProxies = []string{"127.0.0.1", "lb"}

		errs := v.ValidateConfig(cfg)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), `"lb"`)
	})

	t.Run("scheduler timezone checked only when enabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Scheduler.Timezone = "Mars/Olympus"
		assert.Empty(t, v.ValidateConfig(cfg))

		cfg.Scheduler.Enabled = true
		assert.Len(t, v.ValidateConfig(cfg), 1)
	})
}
