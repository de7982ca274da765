package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CheckDocker verifies that the Docker daemon is available and responsive.
func CheckDocker(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "ps", "-q")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker is not available or not running: %w", err)
	}
	return nil
}

// DockerSandbox runs each command in an ephemeral container.
type DockerSandbox struct {
	lifecycle
}

// NewDockerSandbox creates a new Docker-based sandbox.
func NewDockerSandbox(config Config) (*DockerSandbox, error) {
	if config.Runtime == "" {
		config.Runtime = RuntimeDocker
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &DockerSandbox{lifecycle: lifecycle{config: config}}, nil
}

// Start initializes the Docker sandbox.
func (d *DockerSandbox) Start(ctx context.Context) error {
	if err := d.start(); err != nil {
		return err
	}
	log.Info().
		Str("runtime", string(RuntimeDocker)).
		Str("image", d.GetConfig().Docker.Image).
		Msg("Starting docker sandbox")
	return nil
}

// Stop marks the Docker sandbox as stopped.
func (d *DockerSandbox) Stop(ctx context.Context) error {
	if err := d.stop(); err != nil {
		return err
	}
	log.Info().Msg("Stopping docker sandbox")
	return nil
}

// Execute runs a command inside an ephemeral Docker container.
func (d *DockerSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	cfg, err := d.admit(req)
	if err != nil {
		return ExecuteResult{}, err
	}

	args := buildDockerRunArgs(cfg, req)
	result, err := run(ctx, effectiveTimeout(cfg, req), "docker", args, nil, req.Stdin)

	log.Debug().
		Str("runtime", string(RuntimeDocker)).
		Str("image", cfg.Docker.Image).
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Command executed in docker sandbox")

	return result, err
}

func buildDockerRunArgs(cfg Config, req ExecuteRequest) []string {
	args := []string{"run", "--rm", "--init"}

	network := strings.TrimSpace(cfg.Docker.Network)
	if network == "" {
		network = "none"
	}
	args = append(args, "--network", network)

	if cfg.Docker.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(cfg.Docker.CPUs, 'f', 2, 64))
	}
	if cfg.Docker.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", cfg.Docker.MemoryMB))
	}
	if user := strings.TrimSpace(cfg.Docker.User); user != "" {
		args = append(args, "--user", user)
	}
	args = append(args, cfg.Docker.ExtraArgs...)

	if wd := strings.TrimSpace(req.WorkingDir); wd != "" {
		if abs, err := filepath.Abs(wd); err == nil {
			wd = abs
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s", wd, wd), "-w", wd)
	}

	env := mergeEnv(cfg, req.Env)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}

	if len(req.Stdin) > 0 {
		args = append(args, "-i")
	}

	args = append(args, cfg.Docker.Image, req.Command)
	return append(args, req.Args...)
}
