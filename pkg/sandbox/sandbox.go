package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Runtime selects how commands are isolated
type Runtime string

const (
	// RuntimeHost runs commands directly on the host with a minimal environment
	RuntimeHost Runtime = "host"
	// RuntimeDocker runs each command in an ephemeral container
	RuntimeDocker Runtime = "docker"
)

// Config defines sandbox configuration
type Config struct {
	// Runtime is host or docker
	Runtime Runtime `json:"runtime" mapstructure:"runtime"`

	// Timeout applies when a request does not carry its own
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Env is added to every command's environment before request env
	Env map[string]string `json:"env" mapstructure:"env"`

	// AllowedPaths lists working-dir prefixes that may be used; empty allows all
	AllowedPaths []string `json:"allowed_paths" mapstructure:"allowed_paths"`

	// DeniedPaths lists working-dir prefixes that are refused (overrides allowed)
	DeniedPaths []string `json:"denied_paths" mapstructure:"denied_paths"`

	Docker DockerConfig `json:"docker" mapstructure:"docker"`
}

// DockerConfig holds settings for RuntimeDocker
type DockerConfig struct {
	Image     string   `json:"image" mapstructure:"image"`
	Network   string   `json:"network" mapstructure:"network"`
	MemoryMB  int      `json:"memory_mb" mapstructure:"memory_mb"`
	CPUs      float64  `json:"cpus" mapstructure:"cpus"`
	User      string   `json:"user" mapstructure:"user"`
	ExtraArgs []string `json:"extra_args" mapstructure:"extra_args"`
}

// ExecuteRequest represents a sandbox execution request
type ExecuteRequest struct {
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
	Stdin      []byte
	Timeout    time.Duration
}

// ExecuteResult represents a sandbox execution result
type ExecuteResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration

	// Error is set when the process could not run at all
	Error error
}

// Sandbox defines the interface for sandboxed execution
type Sandbox interface {
	// Execute runs a command in the sandbox
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)

	// Start initializes the sandbox
	Start(ctx context.Context) error

	// Stop cleans up the sandbox
	Stop(ctx context.Context) error

	// IsRunning returns whether the sandbox is running
	IsRunning() bool

	// GetConfig returns the sandbox configuration
	GetConfig() Config
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Runtime:     RuntimeHost,
		Timeout:     60 * time.Second,
		Env:         map[string]string{},
		DeniedPaths: []string{"/etc", "/sys", "/proc"},
		Docker: DockerConfig{
			Image:    "oven/bun:1",
			Network:  "bridge",
			MemoryMB: 512,
			CPUs:     1,
		},
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	switch cfg.Runtime {
	case RuntimeHost:
	case RuntimeDocker:
		if cfg.Docker.Image == "" {
			return ErrDockerImageRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRuntime, cfg.Runtime)
	}

	if cfg.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if cfg.Docker.MemoryMB < 0 {
		return ErrInvalidMemoryLimit
	}
	if cfg.Docker.CPUs < 0 {
		return ErrInvalidCPULimit
	}

	return nil
}

// New creates the sandbox selected by cfg.Runtime.
func New(cfg Config) (Sandbox, error) {
	if cfg.Runtime == "" {
		cfg.Runtime = RuntimeHost
	}
	switch cfg.Runtime {
	case RuntimeDocker:
		return NewDockerSandbox(cfg)
	default:
		return NewHostSandbox(cfg)
	}
}
