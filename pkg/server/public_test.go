package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fluentstream/fluentstream/pkg/realtime/sse"
)

func newPublicTestHandler(t *testing.T, cfg PublicConfig) http.Handler {
	t.Helper()
	manager := sse.NewManager(sse.ManagerConfig{}, nil, nil, nil, nil)
	t.Cleanup(func() { _ = manager.Close() })

	sseHandler, err := sse.NewHandler(sse.HandlerConfig{Manager: manager})
	if err != nil {
		t.Fatalf("new sse handler: %v", err)
	}
	return NewPublicHandler(cfg, sseHandler, nil)
}

func TestPublicHandler_PublishRoute(t *testing.T) {
	handler := newPublicTestHandler(t, PublicConfig{})

	body := `{"channel":"lesson-42","type":"progress","data":{"step":1}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/events", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] == "" {
		t.Fatal("publish response must carry the event id")
	}
}

func TestPublicHandler_PublishRateLimit(t *testing.T) {
	handler := newPublicTestHandler(t, PublicConfig{PublishRPS: 1, PublishBurst: 1})

	send := func() int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/v1/events", strings.NewReader(`{"channel":"lesson-42"}`))
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusAccepted {
		t.Fatalf("first publish: expected 202, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second publish: expected 429, got %d", code)
	}
}

func TestPublicHandler_ConnectionsRoute(t *testing.T) {
	handler := newPublicTestHandler(t, PublicConfig{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/connections", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Connections []sse.ConnectionInfo `json:"connections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Connections) != 0 {
		t.Fatalf("expected no connections, got %d", len(resp.Connections))
	}
}

func TestPublicHandler_UnknownRoute(t *testing.T) {
	handler := newPublicTestHandler(t, PublicConfig{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v2/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPublicHandler_StreamMissingChannel(t *testing.T) {
	handler := newPublicTestHandler(t, PublicConfig{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/events", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
