package daemon

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/config"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/bun"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/faktory"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/sandbox"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

// NewRegistry registers the built-in Faktory tools and every extra manifest
// listed in cfg.
func NewRegistry(cfg config.ToolsConfig) (*tool.Registry, error) {
	reg := tool.NewRegistry()
	if err := faktory.Register(reg); err != nil {
		return nil, fmt.Errorf("failed to register faktory tools: %w", err)
	}

	for _, path := range cfg.Manifests {
		if err := registerManifestFile(reg, path); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func registerManifestFile(reg *tool.Registry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open tool manifest: %w", err)
	}
	defer f.Close()

	m, err := tool.LoadManifest(f)
	if err != nil {
		return fmt.Errorf("tool manifest %s: %w", path, err)
	}
	if err := reg.RegisterManifest(m); err != nil {
		return fmt.Errorf("tool manifest %s: %w", path, err)
	}
	return nil
}

// Toolset is a registry and a dispatcher running scripts in a started sandbox.
type Toolset struct {
	Registry   *tool.Registry
	Dispatcher *tool.Dispatcher
	Sandbox    sandbox.Sandbox
}

// NewToolset builds the tool stack from cfg and starts its sandbox. The caller
// must call Close.
func NewToolset(ctx context.Context, cfg *config.Config, observer tool.Observer, logger zerolog.Logger) (*Toolset, error) {
	reg, err := NewRegistry(cfg.Tools)
	if err != nil {
		return nil, err
	}

	sb, err := sandbox.New(cfg.Sandbox)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool sandbox: %w", err)
	}
	runner, err := bun.NewRunner(cfg.Scripts, sb)
	if err != nil {
		return nil, err
	}
	if err := sb.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start tool sandbox: %w", err)
	}

	opts := []tool.Option{tool.WithPolicy(cfg.Tools.Policy()), tool.WithLogger(logger)}
	if observer != nil {
		opts = append(opts, tool.WithObserver(observer))
	}

	return &Toolset{
		Registry:   reg,
		Dispatcher: tool.NewDispatcher(reg, runner, opts...),
		Sandbox:    sb,
	}, nil
}

// Close stops the sandbox.
func (t *Toolset) Close(ctx context.Context) error {
	return t.Sandbox.Stop(ctx)
}
