package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.Ticks.Inc()
	prom.Metrics.Ticks.Inc()
	prom.Metrics.TicksSkipped.Inc()
	prom.Metrics.HedgesPlaced.Inc()
	prom.Metrics.HedgesFailed.Inc()
	prom.Metrics.HedgesCancelled.Inc()
	prom.Metrics.NotificationsSent.Inc()
	prom.Metrics.NotificationsFailed.Inc()

	assertCounter(t, prom.counters["ticks_total"], 2)
	assertCounter(t, prom.counters["ticks_skipped_total"], 1)
	assertCounter(t, prom.counters["hedges_placed_total"], 1)
	assertCounter(t, prom.counters["hedges_failed_total"], 1)
	assertCounter(t, prom.counters["hedges_cancelled_total"], 1)
	assertCounter(t, prom.counters["notifications_sent_total"], 1)
	assertCounter(t, prom.counters["notifications_failed_total"], 1)
}

func TestPrometheusGauges(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.BaseDelta.Set(-2)
	prom.Metrics.MarkPrice.Set(600.5)

	if got := testutil.ToFloat64(prom.gauges["base_delta"]); got != -2 {
		t.Fatalf("expected -2, got %v", got)
	}
	if got := testutil.ToFloat64(prom.gauges["mark_price"]); got != 600.5 {
		t.Fatalf("expected 600.5, got %v", got)
	}
}

func TestPrometheusHandlerExposesNamespace(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.Ticks.Inc()
	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "lp_hedge_bot_ticks_total 1") {
		t.Fatalf("expected ticks counter in output:\n%s", body)
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoop()
	m.Ticks.Inc()
	m.BaseDelta.Set(1)
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
