package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/sandbox"
)

// CommandConfig describes the external crew engine process.
type CommandConfig struct {
	Command string            `json:"command" mapstructure:"command"`
	Args    []string          `json:"args" mapstructure:"args"`
	Dir     string            `json:"dir" mapstructure:"dir"`
	Env     map[string]string `json:"env" mapstructure:"env"`
}

// CommandRunner runs an external engine through a sandbox. The plan is
// written to the process's stdin as JSON and its trimmed stdout is the result.
type CommandRunner struct {
	config  CommandConfig
	sandbox sandbox.Sandbox
}

// NewCommandRunner creates a runner. The sandbox must be started by the caller.
func NewCommandRunner(cfg CommandConfig, sb sandbox.Sandbox) (*CommandRunner, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("invalid config: crew command is required")
	}
	if sb == nil {
		return nil, fmt.Errorf("invalid config: sandbox is required")
	}
	return &CommandRunner{config: cfg, sandbox: sb}, nil
}

// Run implements Runner.
func (r *CommandRunner) Run(ctx context.Context, plan Plan) (string, error) {
	payload, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("failed to encode crew plan: %w", err)
	}

	env := make(map[string]string, len(r.config.Env)+1)
	for k, v := range r.config.Env {
		env[k] = v
	}
	env["ACCOUNT_INDEX"] = fmt.Sprintf("%d", plan.AccountIndex)

	res, err := r.sandbox.Execute(ctx, sandbox.ExecuteRequest{
		Command:    r.config.Command,
		Args:       r.config.Args,
		Env:        env,
		WorkingDir: r.config.Dir,
		Stdin:      payload,
	})
	if err != nil {
		return "", fmt.Errorf("crew engine: %w", err)
	}
	if res.Error != nil {
		return "", fmt.Errorf("crew engine: %w", res.Error)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("crew engine exited with code %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}

	return strings.TrimSpace(string(res.Stdout)), nil
}
