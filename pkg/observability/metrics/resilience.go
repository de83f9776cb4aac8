package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluentstream/fluentstream/pkg/resilience"
)

// ResilienceMetrics exports retry and circuit breaker signals. It
// satisfies resilience.RetryMetrics and resilience.BreakerMetrics.
type ResilienceMetrics struct {
	retryTotal     *prometheus.CounterVec
	exhaustedTotal *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	rejectedTotal  *prometheus.CounterVec
}

// NewResilienceMetrics registers resilience collectors in the registry.
func NewResilienceMetrics(registry *Registry, namespace string) (*ResilienceMetrics, error) {
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	if namespace == "" {
		namespace = "fluentstream"
	}

	m := &ResilienceMetrics{
		retryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retry_attempts_total",
			Help:      "Total retry attempts, by operation.",
		}, []string{"operation"}),
		exhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retry_exhausted_total",
			Help:      "Total operations that failed after all retry attempts.",
		}, []string{"operation"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open), by breaker.",
		}, []string{"breaker"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_breaker_rejected_total",
			Help:      "Total calls rejected by an open circuit breaker, by breaker.",
		}, []string{"breaker"}),
	}

	cs := []prometheus.Collector{m.retryTotal, m.exhaustedTotal, m.breakerState, m.rejectedTotal}
	for _, c := range cs {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register resilience metrics failed: %w", err)
		}
	}
	return m, nil
}

// RetryAttempt records one retry of an operation.
func (m *ResilienceMetrics) RetryAttempt(operation string) {
	if m == nil {
		return
	}
	m.retryTotal.WithLabelValues(operation).Inc()
}

// RetryExhausted records an operation that failed all attempts.
func (m *ResilienceMetrics) RetryExhausted(operation string) {
	if m == nil {
		return
	}
	m.exhaustedTotal.WithLabelValues(operation).Inc()
}

// BreakerState records the current state of a breaker.
func (m *ResilienceMetrics) BreakerState(name string, state resilience.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// BreakerRejected records a call rejected by an open breaker.
func (m *ResilienceMetrics) BreakerRejected(name string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(name).Inc()
}
