// Package scheduler runs stored crons: each enabled cron executes its crew on
// schedule, records the run as a job and notifies the owner over Telegram.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/tracing"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
)

// Source provides crons and records their runs.
type Source interface {
	GetEnabledCronsExpanded(ctx context.Context) ([]store.ExpandedCron, error)
	AddJob(ctx context.Context, job store.NewJob) (store.Job, error)
}

// CrewExecutor runs a crew. *crew.Service implements it.
type CrewExecutor interface {
	Execute(ctx context.Context, accountIndex int, crewID int64, input string) (string, error)
}

// Notifier delivers a run's outcome to the cron's owner.
type Notifier interface {
	NotifyProfile(ctx context.Context, profileID, text string) error
}

// Observer records scheduler activity.
type Observer interface {
	ObserveCronRun(success bool)
	SetActiveCrons(n int)
}

// Options configures a Scheduler. Zero values are valid.
type Options struct {
	// Location interprets schedules; UTC when nil
	Location *time.Location
	// ReloadInterval re-reads crons periodically; zero disables
	ReloadInterval time.Duration
	// RunTimeout bounds one crew run; zero means no limit
	RunTimeout time.Duration

	Notifier Notifier
	Observer Observer
	Logger   *zerolog.Logger
}

type entry struct {
	id       cron.EntryID
	schedule string
	crewID   int64
	input    string
}

// Scheduler keeps the cron table in sync with the store.
type Scheduler struct {
	source  Source
	crews   CrewExecutor
	opts    Options
	logger  zerolog.Logger
	cron    *cron.Cron
	parser  cron.Parser
	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	entries map[string]entry
	started bool
}

// New creates a stopped scheduler.
func New(source Source, crews CrewExecutor, opts Options) (*Scheduler, error) {
	if source == nil {
		return nil, fmt.Errorf("invalid config: cron source is required")
	}
	if crews == nil {
		return nil, fmt.Errorf("invalid config: crew executor is required")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "scheduler").Logger()

	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		source: source,
		crews:  crews,
		opts:   opts,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		baseCtx: ctx,
		cancel:  cancel,
		entries: make(map[string]entry),
	}, nil
}

// Start loads the crons and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.started = true
	s.mu.Unlock()

	if _, err := s.Reload(ctx); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}

	if s.opts.ReloadInterval > 0 {
		s.cron.Schedule(cron.Every(s.opts.ReloadInterval), cron.FuncJob(func() {
			if _, err := s.Reload(s.baseCtx); err != nil {
				s.logger.Error().Err(err).Msg("Failed to reload crons")
			}
		}))
	}

	s.cron.Start()
	s.logger.Info().Int("crons", s.Len()).Msg("Scheduler started")
	return nil
}

// Stop stops scheduling and waits for running crews until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Len returns the number of scheduled crons.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reload re-reads enabled crons and updates the cron table. Unchanged crons
// keep their entries; crons with an invalid schedule are logged and skipped.
// It returns the number of scheduled crons.
func (s *Scheduler) Reload(ctx context.Context) (int, error) {
	crons, err := s.source.GetEnabledCronsExpanded(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load crons: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(crons))
	for _, ec := range crons {
		seen[ec.ID] = true

		want := entry{schedule: ec.Schedule, crewID: ec.CrewID, input: ec.Input}
		if cur, ok := s.entries[ec.ID]; ok {
			if cur.schedule == want.schedule && cur.crewID == want.crewID && cur.input == want.input {
				continue
			}
			s.cron.Remove(cur.id)
			delete(s.entries, ec.ID)
		}

		sched, err := s.parser.Parse(ec.Schedule)
		if err != nil {
			s.logger.Warn().Err(err).Str("cron_id", ec.ID).Str("schedule", ec.Schedule).Msg("Skipping cron with invalid schedule")
			continue
		}

		ec := ec
		want.id = s.cron.Schedule(sched, cron.FuncJob(func() {
			_ = s.Run(s.baseCtx, ec)
		}))
		s.entries[ec.ID] = want
	}

	for id, cur := range s.entries {
		if !seen[id] {
			s.cron.Remove(cur.id)
			delete(s.entries, id)
		}
	}

	if s.opts.Observer != nil {
		s.opts.Observer.SetActiveCrons(len(s.entries))
	}
	s.logger.Debug().Int("crons", len(s.entries)).Msg("Crons reloaded")
	return len(s.entries), nil
}

// Run executes one cron now: runs the crew, records a job and notifies the
// owner. The returned error is the crew's; recording and notification
// failures are logged.
func (s *Scheduler) Run(ctx context.Context, ec store.ExpandedCron) error {
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}
	ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
	ctx = tracing.WithProfileID(ctx, ec.ProfileID)
	logger := tracing.LoggerFromContext(ctx, s.logger).With().Str("cron_id", ec.ID).Int64("crew_id", ec.CrewID).Logger()

	logger.Info().Msg("Running scheduled crew")
	start := time.Now()
	output, runErr := s.crews.Execute(ctx, ec.Profile.AccountIndex, ec.CrewID, ec.Input)

	if s.opts.Observer != nil {
		s.opts.Observer.ObserveCronRun(runErr == nil)
	}

	job := store.NewJob{
		ProfileID: ec.ProfileID,
		CrewID:    ec.CrewID,
		Input:     map[string]interface{}{"input": ec.Input, "cron_id": ec.ID},
	}
	var text string
	if runErr != nil {
		logger.Error().Err(runErr).Dur("duration", time.Since(start)).Msg("Scheduled crew failed")
		job.Result = map[string]interface{}{"error": runErr.Error()}
		text = fmt.Sprintf("Scheduled crew %q failed: %v", ec.Crew.Name, runErr)
	} else {
		logger.Info().Dur("duration", time.Since(start)).Msg("Scheduled crew finished")
		job.Result = map[string]interface{}{"result": output}
		text = fmt.Sprintf("%s\n\n%s", ec.Crew.Name, output)
	}

	// Recording and delivery outlive a timed-out run.
	detached := tracing.Detach(ctx)
	if _, err := s.source.AddJob(detached, job); err != nil {
		logger.Error().Err(err).Msg("Failed to record scheduled run")
	}

	if s.opts.Notifier != nil {
		if err := s.opts.Notifier.NotifyProfile(detached, ec.ProfileID, text); err != nil {
			ev := logger.Warn()
			if errors.Is(err, context.Canceled) {
				ev = logger.Debug()
			}
			ev.Err(err).Msg("Failed to notify cron owner")
		}
	}

	return runErr
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
