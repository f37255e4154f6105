package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the mesh records against.
// Grounded on the teacher's observability.Metrics (one struct of
// promauto-registered vectors plus small recording methods), scaled down
// to this module's four domains: mailbox depth, watchdog rule hits,
// tool-call latency/count, and A2A forward count.
type Metrics struct {
	// MailboxDepth tracks the number of messages currently buffered in
	// an agent's mailbox after a send. Labels: agent_id.
	MailboxDepth *prometheus.GaugeVec

	// WatchdogRuleHits counts every rule match the watchdog framework
	// dispatches to a wake callback. Labels: rule_id, tool_id.
	WatchdogRuleHits *prometheus.CounterVec

	// ToolCallDuration measures Registry.Execute latency in seconds.
	// Labels: tool_id, status (success|error).
	ToolCallDuration *prometheus.HistogramVec

	// ToolCallCounter counts tool executions. Labels: tool_id, status.
	ToolCallCounter *prometheus.CounterVec

	// A2AForwardCounter counts outbound A2A HTTP calls made on behalf
	// of a remote route. Labels: method, status (success|error).
	A2AForwardCounter *prometheus.CounterVec

	// A2AForwardDuration measures outbound A2A HTTP round trip time in
	// seconds. Labels: method.
	A2AForwardDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers every collector against Prometheus's
// default registry. Call once per process; a Facade holds the result and
// hands it to each component that accepts one.
func NewMetrics() *Metrics {
	return &Metrics{
		MailboxDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentmesh_mailbox_depth",
				Help: "Number of messages buffered in an agent mailbox after the most recent send",
			},
			[]string{"agent_id"},
		),
		WatchdogRuleHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentmesh_watchdog_rule_hits_total",
				Help: "Total number of watchdog rule matches dispatched to a wake callback",
			},
			[]string{"rule_id", "tool_id"},
		),
		ToolCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentmesh_tool_call_duration_seconds",
				Help:    "Tool execution latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_id", "status"},
		),
		ToolCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentmesh_tool_calls_total",
				Help: "Total number of tool executions by outcome",
			},
			[]string{"tool_id", "status"},
		),
		A2AForwardCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentmesh_a2a_forward_total",
				Help: "Total number of outbound A2A HTTP requests by outcome",
			},
			[]string{"method", "status"},
		),
		A2AForwardDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentmesh_a2a_forward_duration_seconds",
				Help:    "Outbound A2A HTTP round trip latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method"},
		),
	}
}

// RecordMailboxDepth sets the current mailbox depth gauge for agentID.
func (m *Metrics) RecordMailboxDepth(agentID string, depth int) {
	if m == nil {
		return
	}
	m.MailboxDepth.WithLabelValues(agentID).Set(float64(depth))
}

// RecordWatchdogHit increments the rule-hit counter for a matched rule.
func (m *Metrics) RecordWatchdogHit(ruleID, toolID string) {
	if m == nil {
		return
	}
	m.WatchdogRuleHits.WithLabelValues(ruleID, toolID).Inc()
}

// RecordToolCall records one tool execution's outcome and latency.
func (m *Metrics) RecordToolCall(toolID, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallCounter.WithLabelValues(toolID, status).Inc()
	m.ToolCallDuration.WithLabelValues(toolID, status).Observe(duration.Seconds())
}

// RecordA2AForward records one outbound A2A HTTP round trip.
func (m *Metrics) RecordA2AForward(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.A2AForwardCounter.WithLabelValues(method, status).Inc()
	m.A2AForwardDuration.WithLabelValues(method).Observe(duration.Seconds())
}
