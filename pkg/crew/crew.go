// Package crew assembles a crew's agents, tasks and tools into a plan and
// hands it to an external crew engine.
package crew

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/tracing"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

var (
	// ErrCrewNotFound is returned when a crew has no agents
	ErrCrewNotFound = errors.New("crew not found")

	// ErrEmptyInput is returned when a crew is executed without input
	ErrEmptyInput = errors.New("crew input is empty")
)

// Source provides the stored definition of a crew.
type Source interface {
	GetCrewAgents(ctx context.Context, crewID int64) ([]store.Agent, error)
	GetCrewTasks(ctx context.Context, crewID int64) ([]store.Task, error)
}

// Runner is the crew engine. It receives a complete plan and returns the
// crew's final answer.
type Runner interface {
	Run(ctx context.Context, plan Plan) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, plan Plan) (string, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, plan Plan) (string, error) {
	return f(ctx, plan)
}

// Observer is told about every crew execution that reached the runner.
type Observer interface {
	ObserveCrewExecution(success bool, duration time.Duration)
}

// Plan is everything the engine needs to run one crew.
type Plan struct {
	CrewID       int64       `json:"crew_id"`
	AccountIndex int         `json:"account_index"`
	Input        string      `json:"input"`
	Agents       []PlanAgent `json:"agents"`
	Tasks        []PlanTask  `json:"tasks"`
}

type PlanAgent struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Goal      string            `json:"goal"`
	Backstory string            `json:"backstory"`
	Tools     []tool.Descriptor `json:"tools"`
}

// PlanTask refers to its agent by position in Plan.Agents.
type PlanTask struct {
	Description    string `json:"description"`
	ExpectedOutput string `json:"expected_output"`
	Agent          int    `json:"agent"`
}

// Service builds plans from stored crews.
type Service struct {
	source   Source
	registry *tool.Registry
	runner   Runner
	observer Observer
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithObserver reports executions to o.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a crew service.
func NewService(source Source, registry *tool.Registry, runner Runner, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("invalid config: crew source is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("invalid config: tool registry is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("invalid config: crew runner is required")
	}

	s := &Service{
		source:   source,
		registry: registry,
		runner:   runner,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "crew").Logger()
	return s, nil
}

// Plan loads the crew and resolves its tools without running anything.
func (s *Service) Plan(ctx context.Context, accountIndex int, crewID int64, input string) (Plan, error) {
	agents, err := s.source.GetCrewAgents(ctx, crewID)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to load agents of crew %d: %w", crewID, err)
	}
	if len(agents) == 0 {
		return Plan{}, fmt.Errorf("%w: %d", ErrCrewNotFound, crewID)
	}

	tasks, err := s.source.GetCrewTasks(ctx, crewID)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to load tasks of crew %d: %w", crewID, err)
	}

	plan := Plan{
		CrewID:       crewID,
		AccountIndex: accountIndex,
		Input:        input,
		Agents:       make([]PlanAgent, 0, len(agents)),
		Tasks:        make([]PlanTask, 0, len(tasks)),
	}

	position := make(map[string]int, len(agents))
	for _, a := range agents {
		position[a.ID] = len(plan.Agents)
		plan.Agents = append(plan.Agents, PlanAgent{
			ID:        a.ID,
			Role:      a.Role,
			Goal:      a.Goal,
			Backstory: a.Backstory,
			Tools:     s.resolveTools(a),
		})
	}

	for _, t := range tasks {
		idx, ok := position[t.AgentID]
		if !ok {
			s.logger.Warn().
				Int64("crew_id", crewID).
				Str("task_id", t.ID).
				Str("agent_id", t.AgentID).
				Msg("Task refers to an agent outside the crew, skipping")
			continue
		}
		plan.Tasks = append(plan.Tasks, PlanTask{
			Description:    t.Description,
			ExpectedOutput: t.ExpectedOutput,
			Agent:          idx,
		})
	}

	return plan, nil
}

// resolveTools keeps the agent's tool names that are registered, in the
// agent's order. Unknown names are logged and dropped.
func (s *Service) resolveTools(a store.Agent) []tool.Descriptor {
	tools := make([]tool.Descriptor, 0, len(a.Tools))
	seen := make(map[string]bool, len(a.Tools))
	for _, name := range a.Tools {
		if seen[name] {
			continue
		}
		seen[name] = true

		d, err := s.registry.Get(name)
		if err != nil {
			s.logger.Warn().Str("agent_id", a.ID).Str("tool", name).Msg("Agent tool is not registered, dropping")
			continue
		}
		tools = append(tools, d)
	}
	return tools
}

// Execute runs crewID against input on behalf of the wallet at accountIndex.
func (s *Service) Execute(ctx context.Context, accountIndex int, crewID int64, input string) (string, error) {
	if input == "" {
		return "", ErrEmptyInput
	}

	ctx, span := tracing.StartSpan(ctx, "crewd/crew", "crew.execute",
		attribute.Int64("crew.id", crewID),
	)
	ctx = tracing.WithCrewID(ctx, fmt.Sprintf("%d", crewID))
	logger := tracing.LoggerFromContext(ctx, s.logger)

	plan, err := s.Plan(ctx, accountIndex, crewID, input)
	if err != nil {
		tracing.EndSpan(span, err)
		return "", err
	}

	logger.Info().
		Int("agents", len(plan.Agents)).
		Int("tasks", len(plan.Tasks)).
		Msg("Executing crew")

	start := time.Now()
	result, err := s.runner.Run(ctx, plan)
	duration := time.Since(start)

	if s.observer != nil {
		s.observer.ObserveCrewExecution(err == nil, duration)
	}
	tracing.EndSpan(span, err)

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("Crew execution failed")
		return "", fmt.Errorf("crew %d: %w", crewID, err)
	}

	logger.Info().Dur("duration", duration).Msg("Crew executed")
	return result, nil
}
