// Package daemon wires the configured components into the running service:
// store, tools, crew execution, scheduler, Telegram notifications and the
// HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/api"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/config"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/logger"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/metrics"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/notify"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/scheduler"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/tracing"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/crew"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/sandbox"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/store/rediscache"
)

// Daemon is the crewd service.
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	version string

	sql   *store.SQLStore
	redis *redis.Client
	db    store.Database

	metrics     *metrics.Metrics
	tools       *Toolset
	crewSandbox sandbox.Sandbox
	crews       *crew.Service
	notifier    *notify.TelegramNotifier
	scheduler   *scheduler.Scheduler
	api         *api.Server
	lifecycle   *LifecycleManager

	tracingEnabled bool

	mu        sync.Mutex
	running   bool
	closeOnce sync.Once
}

// New builds every component. Nothing listens until Run. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, version string) (_ *Daemon, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		config:    cfg,
		logger:    log,
		version:   version,
		metrics:   metrics.NewMetrics(),
		lifecycle: NewLifecycleManager(cfg.DataDir),
	}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, version, cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized")
		}
	}

	if err := d.initStore(ctx); err != nil {
		return nil, err
	}
	if err := d.initCrews(ctx); err != nil {
		return nil, err
	}
	if err := d.initNotifier(); err != nil {
		return nil, err
	}
	if err := d.initScheduler(); err != nil {
		return nil, err
	}

	apiLogger := log.Component("api")
	d.api, err = api.NewServer(d.db, d.crews, d.tools.Registry, d.tools.Dispatcher, api.Options{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     seconds(cfg.Server.ReadTimeout),
		WriteTimeout:    seconds(cfg.Server.WriteTimeout),
		ShutdownTimeout: seconds(cfg.Server.ShutdownTimeout),
		RateLimit:       cfg.Server.RateLimit,
		TrustedProxies:  cfg.Server.TrustedProxies,
		Version:         version,
		Metrics:         d.metrics.Handler(),
		Health:          d.sql.Ping,
		Observer:        d.metrics,
		Logger:          &apiLogger,
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Daemon) initStore(ctx context.Context) error {
	cfg := d.config.Database
	sqlStore, err := store.Open(ctx, store.Config{
		Driver:       cfg.Driver,
		DSN:          cfg.DSN,
		MaxOpenConns: cfg.MaxOpenConns,
		Logger:       d.logger.Component("store"),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	d.sql = sqlStore
	d.db = sqlStore

	if cfg.AutoMigrate {
		if err := sqlStore.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	d.logger.Info().Str("driver", cfg.Driver).Msg("Database ready")

	if !d.config.Redis.Enabled {
		return nil
	}
	rc := d.config.Redis
	client, err := rediscache.Dial(ctx, rc.Addr, rc.Password, rc.DB)
	if err != nil {
		return err
	}
	d.redis = client
	cached, err := rediscache.New(sqlStore, client, rediscache.Options{
		KeyPrefix: rc.KeyPrefix,
		TTL:       seconds(rc.TTL),
		Logger:    d.logger.GetZerolog(),
	})
	if err != nil {
		return err
	}
	d.db = cached
	d.logger.Info().Str("addr", rc.Addr).Msg("Session cache enabled")
	return nil
}

func (d *Daemon) initCrews(ctx context.Context) error {
	tools, err := NewToolset(ctx, d.config, d.metrics, d.logger.Component("dispatcher"))
	if err != nil {
		return err
	}
	d.tools = tools
	d.logger.Info().Int("tools", tools.Registry.Len()).Msg("Tools registered")

	// The crew engine runs on the host, bounded by the longest caller deadline.
	sbCfg := d.config.Sandbox
	sbCfg.Runtime = sandbox.RuntimeHost
	sbCfg.Timeout = seconds(max(d.config.Server.WriteTimeout, d.config.Scheduler.RunTimeout))
	sb, err := sandbox.New(sbCfg)
	if err != nil {
		return fmt.Errorf("failed to create crew sandbox: %w", err)
	}
	if err := sb.Start(ctx); err != nil {
		return fmt.Errorf("failed to start crew sandbox: %w", err)
	}
	d.crewSandbox = sb

	runner, err := crew.NewCommandRunner(d.config.Crew, sb)
	if err != nil {
		return err
	}
	d.crews, err = crew.NewService(d.db, tools.Registry, runner,
		crew.WithObserver(d.metrics),
		crew.WithLogger(d.logger.Component("crew")),
	)
	return err
}

func (d *Daemon) initNotifier() error {
	if !d.config.Telegram.Enabled {
		return nil
	}
	bot, err := notify.NewBotAPI(d.config.Telegram.BotToken)
	if err != nil {
		return err
	}
	d.notifier, err = notify.NewTelegramNotifier(bot, d.db, d.metrics, d.logger.Component("notify"))
	if err != nil {
		return err
	}
	d.logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram notifications enabled")
	return nil
}

func (d *Daemon) initScheduler() error {
	sc := d.config.Scheduler
	if !sc.Enabled {
		return nil
	}
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return fmt.Errorf("invalid scheduler timezone: %w", err)
	}

	schedLogger := d.logger.GetZerolog()
	opts := scheduler.Options{
		Location:       loc,
		ReloadInterval: seconds(sc.ReloadInterval),
		RunTimeout:     seconds(sc.RunTimeout),
		Observer:       d.metrics,
		Logger:         &schedLogger,
	}
	if d.notifier != nil {
		opts.Notifier = d.notifier
	}
	d.scheduler, err = scheduler.New(d.db, d.crews, opts)
	return err
}

// Run writes the PID file, starts the scheduler and serves HTTP until ctx is
// done or the listener fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Str("version", d.version).Msg("Starting crewd")

	if err := d.lifecycle.Start(); err != nil {
		return err
	}
	defer func() {
		if err := d.lifecycle.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
		}
	}()

	if d.scheduler != nil {
		if err := d.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		logger.Info().Msg("Scheduler started")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     conc.WaitGroup
		apiErr error
	)
	wg.Go(func() {
		apiErr = d.api.ListenAndServe(ctx)
		// A failed listener takes the daemon down with it.
		cancel()
	})
	<-ctx.Done()
	wg.Wait()

	if d.scheduler != nil {
		stopCtx, stop := context.WithTimeout(context.Background(), seconds(d.config.Server.ShutdownTimeout))
		if err := d.scheduler.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop scheduler")
		}
		stop()
	}

	logger.Info().Msg("crewd stopped")
	return apiErr
}

// Close releases everything New acquired. It is safe on a partly built
// daemon and after Run returns.
func (d *Daemon) Close() {
	d.closeOnce.Do(d.release)
}

func (d *Daemon) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if d.tools != nil {
		errs = append(errs, d.tools.Close(ctx))
	}
	if d.crewSandbox != nil {
		errs = append(errs, d.crewSandbox.Stop(ctx))
	}
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.sql != nil {
		errs = append(errs, d.sql.Close())
	}
	if d.tracingEnabled {
		errs = append(errs, tracing.ShutdownOpenTelemetry(ctx))
		d.tracingEnabled = false
	}
	if err := errors.Join(errs...); err != nil {
		d.logger.Warn().Err(err).Msg("Errors while releasing resources")
	}
}

// Database returns the store the daemon serves from.
func (d *Daemon) Database() store.Database {
	return d.db
}

// Metrics returns the daemon's metrics.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Toolset returns the registered tools.
func (d *Daemon) Toolset() *Toolset {
	return d.tools
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
