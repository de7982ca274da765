package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.registry == nil {
		t.Error("Registry is nil")
	}
	if m.ToolDispatchesTotal == nil || m.CrewExecutionsTotal == nil || m.HTTPRequestsTotal == nil {
		t.Error("Metric vectors not initialized")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	m.ObserveDispatch("faktory_get_buy_quote", true, 20*time.Millisecond)
	m.ObserveDispatch("faktory_get_buy_quote", false, 30*time.Millisecond)
	m.ObserveCrewExecution(true, 2*time.Second)
	m.ObserveHTTPRequest("GET /tools", 200, time.Millisecond)
	m.ObserveCronRun(true)
	m.SetActiveCrons(2)
	m.ObserveNotification(true)
	m.ObserveNotification(false)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"tool_dispatches_total",
		"tool_dispatch_duration_seconds",
		"tool_dispatch_errors_total",
		"crew_executions_total",
		"crew_execution_duration_seconds",
		"http_requests_total",
		"http_request_duration_seconds",
		"cron_runs_total",
		"crons_active",
		"telegram_messages_sent_total",
		"telegram_errors_total",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing: %s", metric)
		}
	}
}

func TestObserveDispatch(t *testing.T) {
	m := NewMetrics()

	m.ObserveDispatch("t", true, time.Millisecond)
	m.ObserveDispatch("t", true, time.Millisecond)
	m.ObserveDispatch("t", false, time.Millisecond)

	if got := testutil.ToFloat64(m.ToolDispatchesTotal.WithLabelValues("t", "success")); got != 2 {
		t.Errorf("success dispatches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ToolDispatchesTotal.WithLabelValues("t", "error")); got != 1 {
		t.Errorf("failed dispatches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ToolDispatchErrorTotal.WithLabelValues("t")); got != 1 {
		t.Errorf("dispatch errors = %v, want 1", got)
	}
}

func TestObserveHTTPRequest(t *testing.T) {
	m := NewMetrics()

	m.ObserveHTTPRequest("POST /execute_crew/{crew_id}", 401, time.Millisecond)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST /execute_crew/{crew_id}", "401")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestSchedulerAndTelegramMetrics(t *testing.T) {
	m := NewMetrics()

	m.SetActiveCrons(3)
	m.ObserveCronRun(false)
	m.ObserveNotification(false)

	if got := testutil.ToFloat64(m.CronsActive); got != 3 {
		t.Errorf("active crons = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.CronRunsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("failed cron runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TelegramErrorsTotal); got != 1 {
		t.Errorf("telegram errors = %v, want 1", got)
	}
}
