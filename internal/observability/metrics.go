package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized interface for collecting Prometheus metrics
// about the Bash Tool's dispatch and execution path: the Command Router,
// the sandbox/approval gates ahead of it, the lane queue commands wait
// in, and the failure categories the Failure Classifier assigns.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordToolExecution("npm", "error", time.Since(start).Seconds())
//	metrics.RecordFailure("CommandNotFound")
type Metrics struct {
	// ToolExecutionCounter counts Bash Tool calls by base command and
	// outcome.
	// Labels: base_command, status (ok|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures Bash Tool call latency in seconds.
	// Labels: base_command
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// FailureCounter counts failed calls by the category the Failure
	// Classifier assigned.
	// Labels: failure_category (CommandNotFound|InvalidUsage|ExecutionError)
	FailureCounter *prometheus.CounterVec

	// SandboxDecisions counts sandbox admission verdicts by resource and
	// decision.
	// Labels: resource, decision (allowed|denied)
	SandboxDecisions *prometheus.CounterVec

	// ApprovalPending is a gauge of outstanding approval requests.
	ApprovalPending prometheus.Gauge

	// LaneQueueDepth tracks how many commands are queued (not yet
	// dispatched) per lane.
	// Labels: lane (main|cron|subagent|nested)
	LaneQueueDepth *prometheus.GaugeVec

	// LaneWaitDuration measures how long a command waited in its lane
	// before starting.
	// Labels: lane
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 2s, 5s, 10s
	LaneWaitDuration *prometheus.HistogramVec

	// SubAgentRuns counts completed sub-agent executions by type and
	// outcome.
	// Labels: sub_agent_type, status (success|failed)
	SubAgentRuns *prometheus.CounterVec
}

// NewMetrics creates and registers every metric. Call once at process
// startup; all metrics register against Prometheus's default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_tool_executions_total",
				Help: "Total number of Bash Tool calls by base command and status",
			},
			[]string{"base_command", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synapse_tool_execution_duration_seconds",
				Help:    "Duration of Bash Tool calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"base_command"},
		),

		FailureCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_failures_total",
				Help: "Total number of failed calls by failure classifier category",
			},
			[]string{"failure_category"},
		),

		SandboxDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_sandbox_decisions_total",
				Help: "Total number of sandbox admission decisions by resource and verdict",
			},
			[]string{"resource", "decision"},
		),

		ApprovalPending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "synapse_approval_requests_pending",
				Help: "Current number of approval requests awaiting a decision",
			},
		),

		LaneQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synapse_lane_queue_depth",
				Help: "Current number of commands queued per lane",
			},
			[]string{"lane"},
		),

		LaneWaitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synapse_lane_wait_duration_seconds",
				Help:    "Time a command spent waiting in its lane before starting",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"lane"},
		),

		SubAgentRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_subagent_runs_total",
				Help: "Total number of completed sub-agent executions by type and outcome",
			},
			[]string{"sub_agent_type", "status"},
		),
	}
}

// RecordToolExecution records one Bash Tool call.
func (m *Metrics) RecordToolExecution(baseCommand, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(baseCommand, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(baseCommand).Observe(durationSeconds)
}

// RecordFailure records one classified failure.
func (m *Metrics) RecordFailure(category string) {
	m.FailureCounter.WithLabelValues(category).Inc()
}

// RecordSandboxDecision records one sandbox admission verdict.
func (m *Metrics) RecordSandboxDecision(resource, decision string) {
	m.SandboxDecisions.WithLabelValues(resource, decision).Inc()
}

// SetApprovalPending sets the current pending-approval-request count.
func (m *Metrics) SetApprovalPending(count int) {
	m.ApprovalPending.Set(float64(count))
}

// SetLaneQueueDepth sets the current queue depth for a lane.
func (m *Metrics) SetLaneQueueDepth(lane string, depth int) {
	m.LaneQueueDepth.WithLabelValues(lane).Set(float64(depth))
}

// RecordLaneWait records how long a command waited in a lane before
// starting.
func (m *Metrics) RecordLaneWait(lane string, waitSeconds float64) {
	m.LaneWaitDuration.WithLabelValues(lane).Observe(waitSeconds)
}

// RecordSubAgentRun records one completed sub-agent execution.
func (m *Metrics) RecordSubAgentRun(subAgentType, status string) {
	m.SubAgentRuns.WithLabelValues(subAgentType, status).Inc()
}
