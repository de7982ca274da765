package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.Nil(t, l.redactor)
	})

	t.Run("file output with redaction", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "crewd.log")

		l, err := New(Config{Level: "debug", File: logFile, Redaction: true, MaxSize: 10})
		require.NoError(t, err)

		api := l.Component("api")
		api.Info().Str("auth", "Bearer secret-session").Msg("request")
		l.Debug().Msg("debug line")
		l.Info().Msg("info line")
		l.Warn().Msg("warn line")
		l.Error().Msg("error line")
		require.NoError(t, l.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"component":"api"`)
		assert.Contains(t, string(content), `"service":"crewd"`)
		assert.Contains(t, string(content), redacted)
		assert.NotContains(t, string(content), "secret-session")
		for _, line := range []string{"debug line", "info line", "warn line", "error line"} {
			assert.Contains(t, string(content), line)
		}
	})

	t.Run("level filters wrapper methods", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "crewd.log")

		l, err := New(Config{Level: "warn", File: logFile})
		require.NoError(t, err)

		l.Info().Msg("dropped")
		l.Warn().Msg("kept")
		require.NoError(t, l.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(content), "dropped")
		assert.Contains(t, string(content), `"level":"warn"`)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l, err := New(Config{Level: "loud"})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.InfoLevel, l.GetZerolog().GetLevel())
	})

	t.Run("installs global logger", func(t *testing.T) {
		l, err := New(Config{Level: "warn"})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.WarnLevel, log.Logger.GetLevel())
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}
