package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics exports streaming subsystem signals. It satisfies the
// sse.Metrics interface.
type StreamMetrics struct {
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	publishedTotal    *prometheus.CounterVec
	deliveredTotal    *prometheus.CounterVec
	droppedTotal      *prometheus.CounterVec
	replayTotal       prometheus.Counter
}

// NewStreamMetrics registers streaming collectors in the registry.
func NewStreamMetrics(registry *Registry, namespace string) (*StreamMetrics, error) {
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	if namespace == "" {
		namespace = "fluentstream"
	}

	m := &StreamMetrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "active_connections",
			Help:      "Currently open SSE connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "connections_total",
			Help:      "Total SSE connections opened.",
		}),
		publishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "events_published_total",
			Help:      "Total events published, by channel.",
		}, []string{"channel"}),
		deliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "events_delivered_total",
			Help:      "Total events delivered to subscribers, by channel.",
		}, []string{"channel"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "events_dropped_total",
			Help:      "Total events dropped on subscriber backpressure, by channel.",
		}, []string{"channel"}),
		replayTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "replay_events_total",
			Help:      "Total events replayed to reconnecting clients.",
		}),
	}

	cs := []prometheus.Collector{
		m.activeConnections, m.connectionsTotal, m.publishedTotal,
		m.deliveredTotal, m.droppedTotal, m.replayTotal,
	}
	for _, c := range cs {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register stream metrics failed: %w", err)
		}
	}
	return m, nil
}

// ConnectionOpened records a new connection.
func (m *StreamMetrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
	m.connectionsTotal.Inc()
}

// ConnectionClosed records a connection teardown.
func (m *StreamMetrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

// EventPublished records one published event.
func (m *StreamMetrics) EventPublished(channel string) {
	if m == nil {
		return
	}
	m.publishedTotal.WithLabelValues(channel).Inc()
}

// EventDelivered records one event delivered to a subscriber.
func (m *StreamMetrics) EventDelivered(channel string) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(channel).Inc()
}

// EventDropped records one event dropped on backpressure.
func (m *StreamMetrics) EventDropped(channel string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(channel).Inc()
}

// ReplayServed records events replayed to a reconnecting client.
func (m *StreamMetrics) ReplayServed(count int) {
	if m == nil {
		return
	}
	m.replayTotal.Add(float64(count))
}
