package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and prompting on out.
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for the settings crewd cannot default and returns the resulting
// config. Empty answers keep the value from base.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := base
	if cfg == nil {
		cfg = DefaultConfig()
	}
	validator := NewValidator()

	fmt.Fprintln(w.out, "=== crewd Configuration Wizard ===")
	fmt.Fprintln(w.out)

	// Scripts
	fmt.Fprintln(w.out, "Tool scripts:")
	dir, err := w.askRequired("Scripts checkout directory", cfg.Scripts.Dir)
	if err != nil {
		return nil, err
	}
	cfg.Scripts.Dir = dir

	if cfg.Scripts.Command, err = w.ask("bun binary", cfg.Scripts.Command); err != nil {
		return nil, err
	}
	fmt.Fprintln(w.out)

	// Crew engine
	fmt.Fprintln(w.out, "Crew engine:")
	if cfg.Crew.Command, err = w.askRequired("Crew engine command", cfg.Crew.Command); err != nil {
		return nil, err
	}
	fmt.Fprintln(w.out)

	// Database
	fmt.Fprintln(w.out, "Database:")
	for {
		driver, err := w.ask("Driver (sqlite3/pgx)", cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		dsn, err := w.ask("DSN (empty for <data_dir>/crewd.db with sqlite3)", cfg.Database.DSN)
		if err != nil {
			return nil, err
		}

		candidate := cfg.Database
		candidate.Driver, candidate.DSN = driver, dsn
		if candidate.Driver == "sqlite3" && candidate.DSN == "" {
			cfg.Database = candidate
			break
		}
		if err := validator.ValidateDatabase(candidate); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Database = candidate
		break
	}
	fmt.Fprintln(w.out)

	// Telegram
	fmt.Fprintln(w.out, "Telegram notifications:")
	enable, err := w.ask("Enable Telegram notifications? (y/n)", yesNo(cfg.Telegram.Enabled))
	if err != nil {
		return nil, err
	}
	cfg.Telegram.Enabled = strings.EqualFold(enable, "y")
	if cfg.Telegram.Enabled {
		for {
			token, err := w.askRequired("Telegram Bot Token", cfg.Telegram.BotToken)
			if err != nil {
				return nil, err
			}
			if err := validator.ValidateTelegramToken(token); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				cfg.Telegram.BotToken = ""
				continue
			}
			cfg.Telegram.BotToken = token
			break
		}
	}
	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Logging.Level)
	} else {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

// ask prompts once; an empty answer returns def.
func (w *Wizard) ask(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}
	answer, err := w.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// askRequired prompts until a non-empty value is available.
func (w *Wizard) askRequired(prompt, def string) (string, error) {
	for {
		answer, err := w.ask(prompt, def)
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
		fmt.Fprintf(w.out, "Error: %s is required\n", strings.ToLower(prompt))
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
