// Package bun runs TypeScript tool scripts through the bun runtime.
package bun

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/rs/zerolog/log"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/sandbox"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

// WalletEnv is the environment variable carrying the invocation identity.
const WalletEnv = "WALLET_ID"

// Config controls how scripts are located and launched.
type Config struct {
	// Command is the bun binary; defaults to "bun"
	Command string `json:"command" mapstructure:"command"`

	// Dir is the scripts checkout; scripts live under <Dir>/src/<subsystem>/
	Dir string `json:"dir" mapstructure:"dir"`

	// Env is passed to every script
	Env map[string]string `json:"env" mapstructure:"env"`
}

// Runner implements tool.Executor on top of a sandbox.
type Runner struct {
	config  Config
	sandbox sandbox.Sandbox
}

// NewRunner creates a runner. The sandbox must be started by the caller.
func NewRunner(cfg Config, sb sandbox.Sandbox) (*Runner, error) {
	if sb == nil {
		return nil, fmt.Errorf("invalid config: sandbox is required")
	}
	if cfg.Command == "" {
		cfg.Command = "bun"
	}
	return &Runner{config: cfg, sandbox: sb}, nil
}

// ScriptPath returns the path of a script relative to the scripts dir.
func ScriptPath(subsystem, script string) string {
	return path.Join("src", subsystem, script)
}

// Execute runs the invocation's script and returns its stdout unchanged.
func (r *Runner) Execute(ctx context.Context, inv tool.Invocation) (string, error) {
	env := make(map[string]string, len(r.config.Env)+1)
	for k, v := range r.config.Env {
		env[k] = v
	}
	env[WalletEnv] = inv.Identity.String()

	args := append([]string{"run", ScriptPath(inv.Subsystem, inv.Script)}, inv.Args...)

	res, err := r.sandbox.Execute(ctx, sandbox.ExecuteRequest{
		Command:    r.config.Command,
		Args:       args,
		Env:        env,
		WorkingDir: r.config.Dir,
	})
	if err != nil {
		diag := err.Error()
		if errors.Is(err, sandbox.ErrExecutionTimeout) && len(res.Stderr) > 0 {
			diag = fmt.Sprintf("%s: %s", err, res.Stderr)
		}
		return "", &tool.ExecutionError{Tool: inv.Tool, ExitCode: res.ExitCode, Diagnostic: diag, Err: err}
	}
	if res.Error != nil {
		return "", &tool.ExecutionError{Tool: inv.Tool, Diagnostic: res.Error.Error(), Err: res.Error}
	}
	if res.ExitCode != 0 {
		log.Debug().
			Str("tool", inv.Tool).
			Int("exit_code", res.ExitCode).
			Msg("Script exited with non-zero status")
		return "", &tool.ExecutionError{Tool: inv.Tool, ExitCode: res.ExitCode, Diagnostic: string(res.Stderr)}
	}

	return string(res.Stdout), nil
}
