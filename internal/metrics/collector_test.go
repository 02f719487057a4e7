package metrics

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"deskbot/internal/bus"
)

func TestCollectorRendersPrometheusText(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("test_requests_total", "Total requests", "").Add(3)
	c.Gauge("test_queue_depth", "Queue depth", "").Set(5)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "test_requests_total 3") {
		t.Fatalf("counter missing from output:\n%s", body)
	}
	if !strings.Contains(body, "test_queue_depth 5") {
		t.Fatalf("gauge missing from output:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE test_requests_total counter") {
		t.Fatalf("type annotation missing:\n%s", body)
	}
}

func TestBindEventsCounts(t *testing.T) {
	eb := bus.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	BindEvents(eb)

	before := MessagesReceived.Value()
	eb.Emit(bus.Event{Type: bus.EventMessageReceived, Source: "test"})
	eb.Emit(bus.Event{Type: bus.EventMessageReceived, Source: "test"})

	if got := MessagesReceived.Value() - before; got != 2 {
		t.Fatalf("expected 2 counted events, got %d", got)
	}
}
