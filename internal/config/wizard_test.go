package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("accepts answers", func(t *testing.T) {
		answers := strings.Join([]string{
			"/srv/agent-tools-ts", // scripts dir
			"",                    // bun binary keeps default
			"/srv/engine/run",     // crew command
			"pgx",                 // driver
			"host=db",             // rejected dsn
			"pgx",                 // driver again
			"postgres://crew@db/crew",
			"y",
			"not-a-token",
			"123456:ABCdef",
			"debug",
		}, "\n") + "\n"

		out := &bytes.Buffer{}
		cfg, err := NewWizard(strings.NewReader(answers), out).Run(nil)
		require.NoError(t, err)

		assert.Equal(t, "/srv/agent-tools-ts", cfg.Scripts.Dir)
		assert.Equal(t, "bun", cfg.Scripts.Command)
		assert.Equal(t, "/srv/engine/run", cfg.Crew.Command)
		assert.Equal(t, "pgx", cfg.Database.Driver)
		assert.Equal(t, "postgres://crew@db/crew", cfg.Database.DSN)
		assert.True(t, cfg.Telegram.Enabled)
		assert.Equal(t, "123456:ABCdef", cfg.Telegram.BotToken)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Contains(t, out.String(), "Error:")
		assert.Contains(t, out.String(), "Configuration complete!")
	})

	t.Run("keeps existing values on empty answers", func(t *testing.T) {
		base := validConfig()
		answers := strings.Repeat("\n", 7)

		cfg, err := NewWizard(strings.NewReader(answers), &bytes.Buffer{}).Run(base)
		require.NoError(t, err)

		assert.Equal(t, "/opt/agent-tools-ts", cfg.Scripts.Dir)
		assert.Equal(t, "/opt/crew-engine/run", cfg.Crew.Command)
		assert.Equal(t, "/tmp/crewd.db", cfg.Database.DSN)
		assert.False(t, cfg.Telegram.Enabled)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("fails on closed input", func(t *testing.T) {
		_, err := NewWizard(strings.NewReader(""), &bytes.Buffer{}).Run(nil)
		assert.Error(t, err)
	})
}
