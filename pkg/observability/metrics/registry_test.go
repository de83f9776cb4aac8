package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fluentstream/fluentstream/pkg/resilience"
)

func scrape(t *testing.T, registry *Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape: expected 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestNewRegistry_DefaultCollectors(t *testing.T) {
	body := scrape(t, NewRegistry())
	for _, metric := range []string{"go_goroutines", "process_start_time_seconds"} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected default collector metric %s in exposition", metric)
		}
	}
}

func TestStreamMetrics(t *testing.T) {
	registry := NewRegistry()
	m, err := NewStreamMetrics(registry, "")
	if err != nil {
		t.Fatalf("new stream metrics: %v", err)
	}

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.EventPublished("lesson-42")
	m.EventDelivered("lesson-42")
	m.EventDropped("lesson-42")
	m.ReplayServed(7)

	body := scrape(t, registry)
	for _, want := range []string{
		"fluentstream_sse_active_connections 1",
		"fluentstream_sse_connections_total 2",
		`fluentstream_sse_events_published_total{channel="lesson-42"} 1`,
		`fluentstream_sse_events_delivered_total{channel="lesson-42"} 1`,
		`fluentstream_sse_events_dropped_total{channel="lesson-42"} 1`,
		"fluentstream_sse_replay_events_total 7",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in exposition:\n%s", want, body)
		}
	}
}

func TestStreamMetrics_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	if _, err := NewStreamMetrics(registry, ""); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewStreamMetrics(registry, ""); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestStreamMetrics_NilRegistry(t *testing.T) {
	if _, err := NewStreamMetrics(nil, ""); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

func TestResilienceMetrics(t *testing.T) {
	registry := NewRegistry()
	m, err := NewResilienceMetrics(registry, "")
	if err != nil {
		t.Fatalf("new resilience metrics: %v", err)
	}

	m.RetryAttempt("fetch-lesson")
	m.RetryAttempt("fetch-lesson")
	m.RetryExhausted("fetch-lesson")
	m.BreakerState("redis", resilience.StateOpen)
	m.BreakerRejected("redis")

	body := scrape(t, registry)
	for _, want := range []string{
		`fluentstream_resilience_retry_attempts_total{operation="fetch-lesson"} 2`,
		`fluentstream_resilience_retry_exhausted_total{operation="fetch-lesson"} 1`,
		`fluentstream_resilience_circuit_breaker_state{breaker="redis"} 1`,
		`fluentstream_resilience_circuit_breaker_rejected_total{breaker="redis"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in exposition:\n%s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var stream *StreamMetrics
	stream.ConnectionOpened()
	stream.ConnectionClosed()
	stream.EventPublished("lesson-42")
	stream.EventDelivered("lesson-42")
	stream.EventDropped("lesson-42")
	stream.ReplayServed(1)

	var res *ResilienceMetrics
	res.RetryAttempt("op")
	res.RetryExhausted("op")
	res.BreakerState("redis", resilience.StateClosed)
	res.BreakerRejected("redis")
}
