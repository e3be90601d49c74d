// Package metrics collects Prometheus counters and histograms for the bus,
// the processor, and the deliberation subsystem, grounded on the teacher
// corpus's uniform promhttp.Handler() exposition pattern (core/noa.go,
// agents/api/api.go) generalized from a bare handler into named collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors bundles every Prometheus metric the bus records. A nil
// *Collectors is valid and every method on it is a no-op, so components
// can hold an optional reference without a hot-path nil check at every
// call site.
type Collectors struct {
	MessagesSent     *prometheus.CounterVec
	MessagesFailed   *prometheus.CounterVec
	MessagesDelivered *prometheus.CounterVec
	ProcessingLatency *prometheus.HistogramVec
	DeliberationTasks *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	SecurityEvents   *prometheus.CounterVec
}

// New registers every collector against reg and returns the bundle. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across parallel test binaries.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentbus",
			Name:      "messages_sent_total",
			Help:      "Total SendMessage attempts, per tenant.",
		}, []string{"tenant"}),
		MessagesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentbus",
			Name:      "messages_failed_total",
			Help:      "Total messages that failed validation, routing, or delivery.",
		}, []string{"tenant", "reason"}),
		MessagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentbus",
			Name:      "messages_delivered_total",
			Help:      "Total messages successfully delivered.",
		}, []string{"tenant", "lane"}),
		ProcessingLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentbus",
			Name:      "processing_latency_seconds",
			Help:      "Message processing latency by strategy.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		DeliberationTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentbus",
			Name:      "deliberation_tasks_total",
			Help:      "Deliberation tasks by terminal status.",
		}, []string{"status"}),
		CircuitBreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentbus",
			Name:      "circuit_breaker_state",
			Help:      "0=closed 1=half_open 2=open, per strategy.",
		}, []string{"strategy"}),
		SecurityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentbus",
			Name:      "security_events_total",
			Help:      "Runtime security scanner events by type and severity.",
		}, []string{"type", "severity"}),
	}
}

func (c *Collectors) incSent(tenant string) {
	if c == nil {
		return
	}
	c.MessagesSent.WithLabelValues(orNone(tenant)).Inc()
}

func (c *Collectors) incFailed(tenant, reason string) {
	if c == nil {
		return
	}
	c.MessagesFailed.WithLabelValues(orNone(tenant), reason).Inc()
}

func (c *Collectors) incDelivered(tenant, lane string) {
	if c == nil {
		return
	}
	c.MessagesDelivered.WithLabelValues(orNone(tenant), lane).Inc()
}

func (c *Collectors) observeLatency(strategy string, seconds float64) {
	if c == nil {
		return
	}
	c.ProcessingLatency.WithLabelValues(strategy).Observe(seconds)
}

func (c *Collectors) incDeliberation(status string) {
	if c == nil {
		return
	}
	c.DeliberationTasks.WithLabelValues(status).Inc()
}

func (c *Collectors) setCircuitState(strategy string, state float64) {
	if c == nil {
		return
	}
	c.CircuitBreakerState.WithLabelValues(strategy).Set(state)
}

func (c *Collectors) incSecurityEvent(eventType, severity string) {
	if c == nil {
		return
	}
	c.SecurityEvents.WithLabelValues(eventType, severity).Inc()
}

// IncSent records a SendMessage attempt.
func (c *Collectors) IncSent(tenant string) { c.incSent(tenant) }

// IncFailed records a failed message with its rejection reason.
func (c *Collectors) IncFailed(tenant, reason string) { c.incFailed(tenant, reason) }

// IncDelivered records a successful delivery on the given lane.
func (c *Collectors) IncDelivered(tenant, lane string) { c.incDelivered(tenant, lane) }

// ObserveLatency records a processing-strategy latency sample in seconds.
func (c *Collectors) ObserveLatency(strategy string, seconds float64) {
	c.observeLatency(strategy, seconds)
}

// IncDeliberationTask records a deliberation task reaching a terminal
// status.
func (c *Collectors) IncDeliberationTask(status string) { c.incDeliberation(status) }

// SetCircuitBreakerState reports a strategy's breaker state as a gauge.
func (c *Collectors) SetCircuitBreakerState(strategy string, state float64) {
	c.setCircuitState(strategy, state)
}

// IncSecurityEvent records a runtime security scanner event.
func (c *Collectors) IncSecurityEvent(eventType, severity string) {
	c.incSecurityEvent(eventType, severity)
}

func orNone(tenant string) string {
	if tenant == "" {
		return "none"
	}
	return tenant
}
