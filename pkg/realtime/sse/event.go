// Package sse implements Server-Sent Events streaming: wire framing,
// bounded replay history for Last-Event-ID recovery, a connection
// manager with optional distributed fan-out, and net/http handlers.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// TypeError marks the terminal event emitted when a producer fails.
// Heartbeats are deliberately not an event type: they go on the wire as
// comment-only frames so they never become a client's Last-Event-ID.
const TypeError = "error"

var eventCounter uint64

// Event is the canonical SSE message used by manager, stores, and buses.
// ID is guaranteed non-empty once normalized; every event on the wire is
// individually resumable via Last-Event-ID.
type Event struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Type      string    `json:"type,omitempty"`
	Data      []byte    `json:"data"`
	Comment   string    `json:"comment,omitempty"`
	RetryMS   int       `json:"retry_ms,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event with a generated id and current timestamp.
func NewEvent(channel, eventType string, data []byte) Event {
	e := Event{
		Channel: channel,
		Type:    eventType,
		Data:    append([]byte(nil), data...),
	}
	e.normalize(time.Now().UTC())
	return e
}

// ErrorEvent builds the terminal event emitted when a producer fails
// mid-stream, carrying a human-readable message and a reconnect hint.
func ErrorEvent(channel, message string, retryMS int) Event {
	payload, _ := json.Marshal(map[string]string{"message": message})
	e := Event{
		Channel: channel,
		Type:    TypeError,
		Data:    payload,
		RetryMS: retryMS,
	}
	e.normalize(time.Now().UTC())
	return e
}

// MarshalPayload serializes an arbitrary payload for Event.Data.
// Strings and byte slices pass through untouched; everything else is JSON
// encoded (time.Time values become RFC 3339 text). A value that cannot be
// serialized is a programming error and the failure propagates rather than
// silently dropping the event.
func MarshalPayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case time.Time:
		return json.Marshal(p.UTC().Format(time.RFC3339Nano))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal sse payload: %w", err)
		}
		return raw, nil
	}
}

// Encode renders the event in the W3C SSE wire text format.
// Field order is fixed (comment, event, id, retry, data) for determinism.
// The id line is always present, multi-line payloads produce one data line
// per physical line, and the trailing blank line terminates the event.
func (e *Event) Encode() []byte {
	var buffer bytes.Buffer
	if e.Comment != "" {
		buffer.WriteString(": ")
		buffer.WriteString(e.Comment)
		buffer.WriteByte('\n')
	}
	if e.Type != "" {
		buffer.WriteString("event: ")
		buffer.WriteString(e.Type)
		buffer.WriteByte('\n')
	}
	buffer.WriteString("id: ")
	buffer.WriteString(e.ID)
	buffer.WriteByte('\n')
	if e.RetryMS > 0 {
		buffer.WriteString("retry: ")
		buffer.WriteString(strconv.Itoa(e.RetryMS))
		buffer.WriteByte('\n')
	}

	data := e.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	for _, line := range strings.Split(string(data), "\n") {
		buffer.WriteString("data: ")
		buffer.WriteString(line)
		buffer.WriteByte('\n')
	}
	buffer.WriteByte('\n')
	return buffer.Bytes()
}

func (e *Event) normalize(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	if e.ID == "" {
		e.ID = nextEventID(e.Timestamp)
	}
}

// nextEventID returns a process-unique id ordered by emission time.
func nextEventID(now time.Time) string {
	seq := atomic.AddUint64(&eventCounter, 1)
	return fmt.Sprintf("%013d-%010d", now.UTC().UnixMilli(), seq)
}
