package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// waitDelay bounds how long output pipes are drained after the process is
// killed, since grandchildren may keep them open.
const waitDelay = time.Second

// lifecycle is the running flag and config shared by both runtimes.
type lifecycle struct {
	config  Config
	running bool
	mu      sync.RWMutex
}

func (l *lifecycle) start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrSandboxAlreadyRunning
	}
	l.running = true
	return nil
}

func (l *lifecycle) stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return ErrSandboxNotRunning
	}
	l.running = false
	return nil
}

// IsRunning returns whether the sandbox is running
func (l *lifecycle) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// GetConfig returns the sandbox configuration
func (l *lifecycle) GetConfig() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// admit checks that a request may run and returns the config to run it with.
func (l *lifecycle) admit(req ExecuteRequest) (Config, error) {
	l.mu.RLock()
	running, cfg := l.running, l.config
	l.mu.RUnlock()

	if !running {
		return Config{}, ErrSandboxNotRunning
	}
	if strings.TrimSpace(req.Command) == "" {
		return Config{}, ErrCommandRequired
	}
	if err := checkFilesystemAccess(cfg, req.WorkingDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// run executes cmd under the effective timeout. Only a timeout is returned as
// an error; a non-zero exit is reported through ExitCode and a process that
// could not start through ExecuteResult.Error.
func run(ctx context.Context, timeout time.Duration, name string, args []string, configure func(*exec.Cmd), stdin []byte) (ExecuteResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	if configure != nil {
		configure(cmd)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ExecuteResult{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: -1,
			Duration: duration,
			Error:    ErrExecutionTimeout,
		}, ErrExecutionTimeout
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ExecuteResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: -1, Duration: duration, Error: ctxErr}, ctxErr
	}

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	result := ExecuteResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}
	if err != nil && exitCode == 0 {
		result.Error = err
	}
	return result, nil
}

func effectiveTimeout(cfg Config, req ExecuteRequest) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return cfg.Timeout
}

// mergeEnv layers request env over config env.
func mergeEnv(cfg Config, env map[string]string) map[string]string {
	out := make(map[string]string, len(cfg.Env)+len(env))
	for k, v := range cfg.Env {
		out[k] = v
	}
	for k, v := range env {
		out[k] = v
	}
	return out
}

// checkFilesystemAccess checks if a working directory is allowed. Prefixes
// match whole path segments, so /tmpfoo is not under /tmp.
func checkFilesystemAccess(cfg Config, path string) error {
	if path == "" {
		return nil
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
	}

	for _, denied := range cfg.DeniedPaths {
		if underPath(cleanPath, denied) {
			return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
		}
	}

	if len(cfg.AllowedPaths) == 0 {
		return nil
	}

	for _, allowed := range cfg.AllowedPaths {
		if underPath(cleanPath, allowed) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
}

func underPath(path, prefix string) bool {
	prefix, err := filepath.Abs(prefix)
	if err != nil {
		return false
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, string(filepath.Separator))+string(filepath.Separator))
}
