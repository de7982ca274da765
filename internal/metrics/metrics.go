package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolDispatchesTotal    *prometheus.CounterVec
	ToolDispatchDuration   *prometheus.HistogramVec
	ToolDispatchErrorTotal *prometheus.CounterVec

	// Crew metrics
	CrewExecutionsTotal   *prometheus.CounterVec
	CrewExecutionDuration prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Scheduler metrics
	CronRunsTotal *prometheus.CounterVec
	CronsActive   prometheus.Gauge

	// Telegram metrics
	TelegramMessagesSentTotal prometheus.Counter
	TelegramErrorsTotal       prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Tool metrics
		ToolDispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_dispatches_total",
				Help: "Total number of tool dispatches that reached the executor",
			},
			[]string{"tool_name", "status"},
		),
		ToolDispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_dispatch_duration_seconds",
				Help:    "Duration of tool dispatches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
		ToolDispatchErrorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_dispatch_errors_total",
				Help: "Total number of failed tool dispatches",
			},
			[]string{"tool_name"},
		),

		// Crew metrics
		CrewExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crew_executions_total",
				Help: "Total number of crew executions",
			},
			[]string{"status"},
		),
		CrewExecutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crew_execution_duration_seconds",
				Help:    "Duration of crew executions in seconds",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),

		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		// Scheduler metrics
		CronRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cron_runs_total",
				Help: "Total number of scheduled crew runs",
			},
			[]string{"status"},
		),
		CronsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crons_active",
				Help: "Number of crons currently scheduled",
			},
		),

		// Telegram metrics
		TelegramMessagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_messages_sent_total",
				Help: "Total number of Telegram messages sent",
			},
		),
		TelegramErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_errors_total",
				Help: "Total number of Telegram errors",
			},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		m.ToolDispatchesTotal,
		m.ToolDispatchDuration,
		m.ToolDispatchErrorTotal,
		m.CrewExecutionsTotal,
		m.CrewExecutionDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CronRunsTotal,
		m.CronsActive,
		m.TelegramMessagesSentTotal,
		m.TelegramErrorsTotal,
	)
}

func status(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// ObserveDispatch records one tool dispatch.
func (m *Metrics) ObserveDispatch(tool string, success bool, duration time.Duration) {
	m.ToolDispatchesTotal.WithLabelValues(tool, status(success)).Inc()
	m.ToolDispatchDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.ToolDispatchErrorTotal.WithLabelValues(tool).Inc()
	}
}

// ObserveCrewExecution records one crew execution.
func (m *Metrics) ObserveCrewExecution(success bool, duration time.Duration) {
	m.CrewExecutionsTotal.WithLabelValues(status(success)).Inc()
	m.CrewExecutionDuration.Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served request. route is the matched
// pattern, not the raw path.
func (m *Metrics) ObserveHTTPRequest(route string, code int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveCronRun records one scheduled run.
func (m *Metrics) ObserveCronRun(success bool) {
	m.CronRunsTotal.WithLabelValues(status(success)).Inc()
}

// SetActiveCrons sets the number of scheduled crons.
func (m *Metrics) SetActiveCrons(n int) {
	m.CronsActive.Set(float64(n))
}

// ObserveNotification records one Telegram delivery attempt.
func (m *Metrics) ObserveNotification(success bool) {
	if success {
		m.TelegramMessagesSentTotal.Inc()
		return
	}
	m.TelegramErrorsTotal.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
