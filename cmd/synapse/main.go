// Command synapse is a thin stdin/stdout harness around the Bash Tool: it
// wires a persistent shell session, sandbox policy, and approval gate per
// SPEC_FULL.md §6 defaults, then reads one {"command","restart"} JSON
// object per line from stdin and writes one ToolResult-shaped JSON object
// per line to stdout. It is not the outer agent runtime (spec.md §1
// Non-goals) — just enough of a process entry point to drive the Bash
// Tool end to end.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/bashtool"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/config"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/observability"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/policy"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/process"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/router"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/subagent"
)

func main() {
	profile := flag.String("profile", "coding", "sandbox/approval profile: minimal|coding|readonly|full")
	flag.Parse()

	cfg := config.Load()
	tool, err := newBashTool(cfg, *profile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	runLoop(tool)
}

func newBashTool(cfg config.Config, profileName string) (*bashtool.Tool, error) {
	shell, err := shellsession.New(shellsession.Config{
		ShellCommand:   cfg.Shell,
		CommandTimeout: cfg.CommandTimeout,
		RestartDelay:   cfg.RestartDelay,
		MaxOutputChars: cfg.MaxOutputChars,
	})
	if err != nil {
		return nil, fmt.Errorf("spawning shell: %w", err)
	}

	resolver := policy.NewResolver()
	resolved := resolver.Decide(&policy.Policy{Profile: policy.Profile(profileName)}, "Bash")
	sandbox := policy.NewSandboxManager(nil)
	if resolved.Allowed {
		sandbox.Allow("*")
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	metrics := observability.NewMetrics()
	sandbox.SetMetrics(metrics)

	tracer, _ := observability.NewTracer(observability.TraceConfig{
		ServiceName: "synapse",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})

	queue := process.NewCommandQueue()
	queue.SetMetrics(metrics)

	tool := bashtool.New(bashtool.Deps{
		Shell:    shell,
		Sandbox:  sandbox,
		Logger:   logger,
		Metrics:  metrics,
		Approval: policy.NewApprovalChecker(policy.DefaultApprovalPolicy()),
		Queue:    queue,
		Lane:     process.LaneMain,
	})
	tool.Router().SetTracer(tracer)

	registerTaskHandler(tool, cfg, logger, metrics, tracer)
	return tool, nil
}

// registerTaskHandler wires the Sub-Agent Executor into tool's Router under
// the `task:` prefix (spec §4.6), so `task:<type> --prompt "…"` reaches a
// bounded nested agent loop instead of falling through to NATIVE. Without
// an Anthropic API key there is no provider to drive that loop, so the
// handler is skipped and `task:*` commands surface as "command not found"
// until one is configured.
func registerTaskHandler(tool *bashtool.Tool, cfg config.Config, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		logger.Warn(context.Background(), "ANTHROPIC_API_KEY not set, task: commands are unavailable")
		return
	}

	provider, err := subagent.NewAnthropicProvider(subagent.AnthropicConfig{APIKey: apiKey})
	if err != nil {
		logger.Warn(context.Background(), "failed to construct sub-agent provider", "error", err)
		return
	}

	events := observability.NewEventRecorder(observability.NewMemoryEventStore(1000), logger)
	executor := subagent.NewExecutor(provider, tool, subagent.ExecutorConfig{
		Metrics: metrics,
		Events:  events,
		Tracer:  tracer,
	})

	handler := subagent.NewTaskHandler(executor, subagent.DefaultTypeRegistry(), shellsession.Config{
		ShellCommand:   cfg.Shell,
		CommandTimeout: cfg.CommandTimeout,
		RestartDelay:   cfg.RestartDelay,
		MaxOutputChars: cfg.MaxOutputChars,
	}, nil)

	tool.Router().RegisterHandler("task:", router.BuiltinVerb, router.MatchPrefix, handler)
}

type lineRequest struct {
	Command string `json:"command"`
	Restart bool   `json:"restart"`
}

func runLoop(tool *bashtool.Tool) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)

	sessionID := fmt.Sprintf("synapse-%d", os.Getpid())
	var requestSeq int64

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req lineRequest
		if err := json.Unmarshal(line, &req); err != nil {
			slog.Error("malformed request line", "error", err)
			continue
		}

		requestSeq++
		ctx := observability.AddSessionID(context.Background(), sessionID)
		ctx = observability.AddRequestID(ctx, fmt.Sprintf("%s-%d", sessionID, requestSeq))

		ret := tool.Call(ctx, req.Command, req.Restart)
		if err := enc.Encode(ret); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("stdin read error", "error", err)
		os.Exit(1)
	}
}
