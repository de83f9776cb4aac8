package sse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Source produces the events of one stream. Next blocks until an event is
// available, the source is exhausted (io.EOF), or producing fails. A
// source is pulled one event at a time, only when the transport is ready
// to send more, so backpressure propagates naturally to the producer.
type Source interface {
	Next(ctx context.Context) (Event, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (Event, error)

// Next calls f.
func (f SourceFunc) Next(ctx context.Context) (Event, error) { return f(ctx) }

// SliceSource yields a fixed slice of events in order, then io.EOF.
func SliceSource(events []Event) Source {
	i := 0
	return SourceFunc(func(context.Context) (Event, error) {
		if i >= len(events) {
			return Event{}, io.EOF
		}
		evt := events[i]
		i++
		return evt, nil
	})
}

// ChanSource yields events from a channel until it is closed.
func ChanSource(ch <-chan Event) Source {
	return SourceFunc(func(ctx context.Context) (Event, error) {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				return Event{}, io.EOF
			}
			return evt, nil
		}
	})
}

// Splice concatenates sources: each is drained to io.EOF before the next
// is pulled. Used to serve buffered replay events strictly before live
// ones on reconnect, with no reordering and no interleaving.
func Splice(sources ...Source) Source {
	idx := 0
	return SourceFunc(func(ctx context.Context) (Event, error) {
		for idx < len(sources) {
			evt, err := sources[idx].Next(ctx)
			if errors.Is(err, io.EOF) {
				idx++
				continue
			}
			return evt, err
		}
		return Event{}, io.EOF
	})
}

// Writer frames events onto an HTTP response as text/event-stream chunks.
// Each event is flushed immediately: low-latency incremental delivery is
// the entire point of SSE, so nothing is buffered beyond the transport.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// ErrStreamingUnsupported indicates the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// NewWriter prepares an SSE response: it validates flushing support,
// writes the mandatory stream headers, and commits the 200 status.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Headers", "Cache-Control, Last-Event-ID")

	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Send frames one event and flushes it.
func (sw *Writer) Send(event Event) error {
	if _, err := sw.w.Write(event.Encode()); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Comment writes a comment-only line. Clients ignore it; proxies see
// traffic and keep the connection open.
func (sw *Writer) Comment(text string) error {
	if _, err := sw.w.Write([]byte(": " + text + "\n\n")); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// ServeOptions tunes how a source is served.
type ServeOptions struct {
	// RetryMS is the reconnect hint attached to the terminal error event
	// when the source fails.
	RetryMS int
	// HeartbeatInterval emits a comment-only frame whenever the stream
	// has been idle this long, keeping intermediaries from reaping the
	// connection. Heartbeats are comments, never events: they carry no
	// id line, so the client's Last-Event-ID resume point only ever
	// advances on real events. Zero disables heartbeats.
	HeartbeatInterval time.Duration
}

// Serve pulls the source until it is exhausted or ctx ends, framing each
// event onto the stream with periodic heartbeat comments in between.
//
// Failure semantics: when the source fails, one terminal error-typed event
// is sent (with a reconnect hint) before the stream closes, so the client
// sees an explanation rather than a silently truncated stream. Context
// cancellation and write failures mean the client went away; both are
// normal termination with nothing further to report.
func (sw *Writer) Serve(ctx context.Context, src Source, opts ServeOptions) error {
	type pulled struct {
		evt Event
		err error
	}
	pullCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pulls := make(chan pulled)
	go func() {
		for {
			evt, err := src.Next(pullCtx)
			select {
			case pulls <- pulled{evt: evt, err: err}:
			case <-pullCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var heartbeat <-chan time.Time
	if opts.HeartbeatInterval > 0 {
		ticker := time.NewTicker(opts.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat:
			if err := sw.Comment("heartbeat"); err != nil {
				return nil
			}
		case p := <-pulls:
			if p.err != nil {
				if errors.Is(p.err, io.EOF) || errors.Is(p.err, context.Canceled) || ctx.Err() != nil {
					return nil
				}
				_ = sw.Send(ErrorEvent(p.evt.Channel, p.err.Error(), opts.RetryMS))
				return nil
			}
			if err := sw.Send(p.evt); err != nil {
				return nil
			}
		}
	}
}

// ServeSource prepares the response for streaming and serves the source
// over it.
func ServeSource(w http.ResponseWriter, r *http.Request, src Source, opts ServeOptions) error {
	sw, err := NewWriter(w)
	if err != nil {
		return err
	}
	return sw.Serve(r.Context(), src, opts)
}
