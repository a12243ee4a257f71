package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRunCompleted(t *testing.T) {
	m := New()
	m.RunCompleted("delivered", 2*time.Second)
	m.RunCompleted("delivered", time.Second)
	m.RunCompleted("skip", 0)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("delivered")); got != 2 {
		t.Errorf("delivered runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("skip")); got != 1 {
		t.Errorf("skip runs = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestDeliveryFailed(t *testing.T) {
	m := New()
	m.DeliveryFailed("sendPhoto")
	if got := testutil.ToFloat64(m.deliveryFailures.WithLabelValues("sendPhoto")); got != 1 {
		t.Errorf("sendPhoto failures = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RunCompleted("failed", time.Second)
	m.DeliveryFailed("sendMessage")
	m.CommandHandled("start")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.CommandHandled("resumen")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `gastos_bot_commands_total{command="resumen"} 1`) {
		t.Errorf("metrics output missing bot command counter:\n%s", body)
	}
}
