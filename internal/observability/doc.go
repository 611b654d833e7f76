// Package observability provides comprehensive monitoring and debugging
// capabilities for the bash tool's dispatch and execution path through
// metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: Minimal performance impact on production systems
//   - Type-safe: Strongly-typed APIs reduce configuration errors
//   - Production-ready: Built-in security (redaction) and reliability features
//   - Standards-based: Uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Bash Tool call outcomes and latency by base command
//   - Failure classifier categories
//   - Sandbox admission decisions (allowed/denied) by resource
//   - Outstanding approval requests
//   - Lane queue depth and wait time
//   - Sub-agent run outcomes by type
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	// ... run the command through the router ...
//	metrics.RecordToolExecution("npm", "ok", time.Since(start).Seconds())
//	metrics.RecordFailure("CommandNotFound")
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic run/session ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//
//	logger.Info(ctx, "command routed",
//	    "base_command", cmd.BaseToken,
//	    "layer", layer,
//	)
//
//	logger.Error(ctx, "sandbox execution failed",
//	    "error", err,
//	    "resource", resource,
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track a command from dispatch
// through execution:
//   - End-to-end request visualization
//   - Performance bottleneck identification
//   - Error correlation across the router/sandbox/sub-agent boundary
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "synapse",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,              // Sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceCommandRoute(ctx, cmd.BaseToken, string(layer))
//	defer span.End()
//
//	ctx, subSpan := tracer.TraceSubAgentRun(ctx, subAgentID, subAgentType)
//	defer subSpan.End()
//	if err != nil {
//	    tracer.RecordError(subSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//
//	logger.Info(ctx, "routing command") // Includes request_id, session_id
//
//	ctx, span := tracer.Start(ctx, "operation")
//	// Trace context propagates to child spans
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Performance
//
// The observability system is designed for minimal overhead:
//   - Metrics use lock-free counters where possible
//   - Logging with slog is highly efficient
//   - Tracing supports sampling to reduce overhead
//
// # Configuration
//
// All components support configuration via structs:
//
//	metrics := observability.NewMetrics()
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:          os.Getenv("LOG_LEVEL"),
//	    Format:         "json",
//	    AddSource:      true,
//	    RedactPatterns: []string{`custom-secret-\d+`},
//	})
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "synapse",
//	    ServiceVersion: version,
//	    Environment:    env,
//	    Endpoint:       os.Getenv("OTEL_ENDPOINT"),
//	    SamplingRate:   0.1,
//	})
//	defer shutdown(context.Background())
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
//
// # Best Practices
//
//  1. Always propagate context to enable correlation
//  2. Use defer for span.End() to ensure spans are closed
//  3. Record errors on both metrics and traces
//  4. Use structured logging with key-value pairs
//  5. Set appropriate sampling rates for high-traffic systems
//  6. Use typed metric labels (avoid high-cardinality values, e.g. raw
//     command arguments)
//  7. Call shutdown() on tracer during graceful shutdown
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Tool execution throughput
//	rate(synapse_tool_executions_total[5m])
//
//	# Tool execution latency (95th percentile)
//	histogram_quantile(0.95, rate(synapse_tool_execution_duration_seconds_bucket[5m]))
//
//	# Failure rate by category
//	rate(synapse_failures_total[5m])
//
//	# Outstanding approvals
//	synapse_approval_requests_pending
//
//	# Lane queue depth
//	synapse_lane_queue_depth
//
// # Alerting
//
// Recommended alerts based on metrics:
//   - High failure rate: rate(synapse_failures_total[5m]) > threshold
//   - High tool latency: p95 latency > 10s
//   - Approval backlog: synapse_approval_requests_pending growing unbounded
//   - Lane starvation: synapse_lane_queue_depth growing unbounded
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
