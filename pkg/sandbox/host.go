package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"sort"

	"github.com/rs/zerolog/log"
)

// HostSandbox runs commands directly on the host with a minimal environment
type HostSandbox struct {
	lifecycle
}

// NewHostSandbox creates a new host-based sandbox
func NewHostSandbox(config Config) (*HostSandbox, error) {
	if config.Runtime == "" {
		config.Runtime = RuntimeHost
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HostSandbox{lifecycle: lifecycle{config: config}}, nil
}

// Start initializes the sandbox
func (h *HostSandbox) Start(ctx context.Context) error {
	if err := h.start(); err != nil {
		return err
	}
	log.Info().
		Str("runtime", string(RuntimeHost)).
		Dur("timeout", h.GetConfig().Timeout).
		Msg("Starting host sandbox")
	return nil
}

// Stop cleans up the sandbox
func (h *HostSandbox) Stop(ctx context.Context) error {
	if err := h.stop(); err != nil {
		return err
	}
	log.Info().Msg("Stopping host sandbox")
	return nil
}

// Execute runs a command in the sandbox
func (h *HostSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	cfg, err := h.admit(req)
	if err != nil {
		return ExecuteResult{}, err
	}

	env := buildEnvironment(mergeEnv(cfg, req.Env))
	result, err := run(ctx, effectiveTimeout(cfg, req), req.Command, req.Args, func(cmd *exec.Cmd) {
		cmd.Dir = req.WorkingDir
		cmd.Env = env
	}, req.Stdin)

	log.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Command executed in sandbox")

	return result, err
}

// buildEnvironment starts from a minimal environment; PATH and HOME can be
// overridden through env.
func buildEnvironment(env map[string]string) []string {
	base := map[string]string{
		"PATH": "/usr/local/bin:/usr/bin:/bin",
		"HOME": "/tmp",
	}
	for k, v := range env {
		base[k] = v
	}

	keys := make([]string, 0, len(base))
	for k := range base {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+base[k])
	}
	return result
}
