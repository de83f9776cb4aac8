package sse

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fluentstream/fluentstream/pkg/observability/logger"
)

// HandlerConfig configures the net/http SSE endpoints.
type HandlerConfig struct {
	Manager *Manager
	Logger  logger.Logger
	// Query key for channel name, default "channel".
	ChannelQueryParam string
	// Query key for explicit Last-Event-ID fallback, default "last_event_id".
	// EventSource clients cannot set arbitrary headers on reconnect in
	// every browser, so the query fallback stays supported.
	LastEventIDQueryParam string
}

// Handler exposes the streaming subsystem over HTTP: a long-lived
// text/event-stream endpoint and a JSON publish endpoint.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates the SSE HTTP handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Manager == nil {
		return nil, errors.New("sse manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if strings.TrimSpace(cfg.ChannelQueryParam) == "" {
		cfg.ChannelQueryParam = "channel"
	}
	if strings.TrimSpace(cfg.LastEventIDQueryParam) == "" {
		cfg.LastEventIDQueryParam = "last_event_id"
	}
	return &Handler{cfg: cfg}, nil
}

// Stream returns the streaming endpoint. On each request it registers a
// connection, replays events missed since the client's Last-Event-ID
// strictly before any live event, then forwards live events with periodic
// heartbeat comments until the client goes away.
func (h *Handler) Stream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := h.parseSubscriptionRequest(r)
		if req.Channel == "" {
			writeJSONError(w, http.StatusBadRequest, "missing channel")
			return
		}

		client, replay, err := h.cfg.Manager.Subscribe(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, ErrTooManyConnections):
				writeJSONError(w, http.StatusTooManyRequests, err.Error())
			case errors.Is(err, ErrInvalidChannel):
				writeJSONError(w, http.StatusBadRequest, err.Error())
			default:
				h.cfg.Logger.Error("sse subscribe failed", "channel", req.Channel, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "subscribe failed")
			}
			return
		}
		defer func() { _ = h.cfg.Manager.Disconnect(client.ID()) }()

		sw, err := NewWriter(w)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = sw.Comment("connected")

		mcfg := h.cfg.Manager.Config()
		src := Splice(SliceSource(replay), client.Source())
		_ = sw.Serve(r.Context(), src, ServeOptions{
			RetryMS:           mcfg.DefaultRetryMS,
			HeartbeatInterval: mcfg.HeartbeatInterval,
		})
	}
}

// publishBody is the JSON payload accepted by the publish endpoint.
type publishBody struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type,omitempty"`
	Data    json.RawMessage `json:"data"`
	RetryMS int             `json:"retry_ms,omitempty"`
}

// Publish returns the endpoint that records and fans out one event.
func (h *Handler) Publish() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body publishBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		event, err := h.cfg.Manager.Publish(r.Context(), PublishRequest{
			Channel: body.Channel,
			Type:    body.Type,
			Data:    body.Data,
			RetryMS: body.RetryMS,
		})
		if err != nil {
			if errors.Is(err, ErrInvalidChannel) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			h.cfg.Logger.Error("sse publish failed", "channel", body.Channel, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "publish failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": event.ID})
	}
}

// Connections returns the diagnostics endpoint listing active connections.
func (h *Handler) Connections() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"connections": h.cfg.Manager.ActiveConnections(),
		})
	}
}

func (h *Handler) parseSubscriptionRequest(r *http.Request) SubscriptionRequest {
	lastID := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if lastID == "" {
		lastID = strings.TrimSpace(r.URL.Query().Get(h.cfg.LastEventIDQueryParam))
	}
	return SubscriptionRequest{
		ClientID:    strings.TrimSpace(r.Header.Get("X-Client-ID")),
		Channel:     strings.TrimSpace(r.URL.Query().Get(h.cfg.ChannelQueryParam)),
		LastEventID: lastID,
		RemoteAddr:  r.RemoteAddr,
		UserAgent:   r.UserAgent(),
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
