package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/tracing"
)

// Executor runs one prepared invocation and returns its raw output.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, inv Invocation) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, inv Invocation) (string, error) {
	return f(ctx, inv)
}

// Observer is told about every dispatch that reached the executor.
type Observer interface {
	ObserveDispatch(tool string, success bool, duration time.Duration)
}

// Request is a caller's attempt to invoke a tool.
type Request struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Result is the raw outcome of a successful dispatch.
type Result struct {
	Tool     string        `json:"tool"`
	Output   string        `json:"output"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
}

// Outcome is delivered on the channel returned by DispatchAsync.
type Outcome struct {
	Result Result
	Err    error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPolicy restricts dispatch to tools the policy allows.
func WithPolicy(p *Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithObserver reports dispatch outcomes to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// Dispatcher turns requests into executor invocations. It keeps no state
// between calls.
type Dispatcher struct {
	registry *Registry
	executor Executor
	policy   *Policy
	observer Observer
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher over reg that runs invocations with exec.
func NewDispatcher(reg *Registry, exec Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		executor: exec,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "dispatcher").Logger()
	return d
}

// Prepare resolves the tool, validates the arguments, applies defaults and
// builds the positional argument list. It performs no I/O. The returned
// invocation has a zero Identity.
func (d *Dispatcher) Prepare(req Request) (Invocation, error) {
	if !d.policy.Allows(req.Tool) {
		return Invocation{}, fmt.Errorf("%w: %s", ErrToolNotAllowed, req.Tool)
	}

	desc, schema, err := d.registry.lookup(req.Tool)
	if err != nil {
		return Invocation{}, err
	}

	supplied := normalizeArguments(desc, req.Arguments)
	if err := validateArguments(desc, schema, supplied); err != nil {
		return Invocation{}, err
	}

	args := make([]string, 0, len(desc.Parameters))
	present := make(map[string]bool, len(desc.Parameters))
	for _, p := range desc.Parameters {
		if v, ok := supplied[p.Name]; ok {
			// A value whose gate was dropped is dropped too, and cannot gate others.
			if p.IncludeIf != "" && !present[p.IncludeIf] {
				continue
			}
			present[p.Name] = true
			args = append(args, v.(string))
			continue
		}
		if p.Default != nil {
			args = append(args, *p.Default)
		}
	}

	return Invocation{
		Tool:      desc.Name,
		Subsystem: desc.Subsystem,
		Script:    desc.Script,
		Args:      args,
	}, nil
}

// Dispatch prepares req and runs it as identity, blocking until the executor
// returns.
func (d *Dispatcher) Dispatch(ctx context.Context, identity uuid.UUID, req Request) (Result, error) {
	inv, err := d.Prepare(req)
	if err != nil {
		d.logger.Warn().Err(err).Str("tool", req.Tool).Msg("Tool request rejected")
		return Result{Tool: req.Tool}, err
	}
	inv.Identity = identity
	return d.invoke(ctx, inv)
}

// DispatchAsync prepares req synchronously and runs the executor on its own
// goroutine. Validation failures are returned directly and never start the
// executor. The channel receives exactly one Outcome and is then closed.
func (d *Dispatcher) DispatchAsync(ctx context.Context, identity uuid.UUID, req Request) (<-chan Outcome, error) {
	inv, err := d.Prepare(req)
	if err != nil {
		d.logger.Warn().Err(err).Str("tool", req.Tool).Msg("Tool request rejected")
		return nil, err
	}
	inv.Identity = identity

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := d.invoke(ctx, inv)
		out <- Outcome{Result: res, Err: err}
	}()
	return out, nil
}

func (d *Dispatcher) invoke(ctx context.Context, inv Invocation) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "crewd/tool", "tool.dispatch",
		attribute.String("tool.name", inv.Tool),
		attribute.String("tool.subsystem", inv.Subsystem),
		attribute.Int("tool.args", len(inv.Args)),
	)

	logger := tracing.LoggerFromContext(ctx, d.logger).With().Str("tool", inv.Tool).Logger()
	logger.Debug().Strs("args", inv.Args).Msg("Executing tool")

	start := time.Now()

	var (
		output  string
		execErr error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		output, execErr = d.executor.Execute(ctx, inv)
	})
	if r := catcher.Recovered(); r != nil {
		execErr = &ExecutionError{Tool: inv.Tool, Diagnostic: fmt.Sprintf("executor panicked: %v", r.Value), Err: r.AsError()}
	}

	duration := time.Since(start)
	result := Result{Tool: inv.Tool, Duration: duration}

	if execErr != nil {
		execErr = asExecutionError(inv.Tool, execErr)
		logger.Error().Err(execErr).Dur("duration", duration).Msg("Tool execution failed")
	} else {
		result.Output = output
		result.Success = true
		logger.Info().Dur("duration", duration).Int("output_bytes", len(output)).Msg("Tool executed")
	}

	if d.observer != nil {
		d.observer.ObserveDispatch(inv.Tool, result.Success, duration)
	}
	tracing.EndSpan(span, execErr)

	return result, execErr
}

// asExecutionError keeps executor failures distinguishable from caller
// defects without altering their diagnostic. The executor's own error value
// is never modified; a copy carries the tool name.
func asExecutionError(tool string, err error) error {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		if ee.Tool != "" {
			return err
		}
		named := *ee
		named.Tool = tool
		return &named
	}
	return &ExecutionError{Tool: tool, Diagnostic: err.Error(), Err: err}
}

// normalizeArguments drops values that count as not supplied: nil values, and
// empty strings for parameters that have no default to fall back on.
func normalizeArguments(d Descriptor, args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for name, v := range args {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			if p, declared := d.Parameter(name); declared && p.Omittable() {
				continue
			}
		}
		out[name] = v
	}
	return out
}
