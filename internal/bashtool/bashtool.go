// Package bashtool implements the outward tool surface the LLM calls as
// "Bash" (spec §4.4): a single {command, restart} entry point wrapping the
// Command Router, with misuse detection, timeout recovery, and the
// self-correction hint the Failure Classifier drives.
package bashtool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/failure"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/observability"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/policy"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/process"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/router"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

// sandboxAdapter bridges policy.SandboxManager's policy.SandboxResult to
// the router.SandboxResult shape router.SandboxPolicy requires. The two
// are structurally identical by design (policy can't import router
// without a cycle) but remain distinct named types, so a thin adapter is
// cheaper than collapsing the packages together.
type sandboxAdapter struct {
	manager *policy.SandboxManager
}

func newSandboxAdapter(manager *policy.SandboxManager) router.SandboxPolicy {
	if manager == nil {
		return nil
	}
	return &sandboxAdapter{manager: manager}
}

func (a *sandboxAdapter) Execute(ctx context.Context, command, cwd string) (router.SandboxResult, error) {
	r, err := a.manager.Execute(ctx, command, cwd)
	if err != nil {
		return router.SandboxResult{}, err
	}
	return router.SandboxResult{
		Allowed:         r.Allowed,
		Stdout:          r.Stdout,
		Stderr:          r.Stderr,
		ExitCode:        r.ExitCode,
		BlockedReason:   r.BlockedReason,
		BlockedResource: r.BlockedResource,
	}, nil
}

// ToolReturn is the tagged-union result the outer agent runtime consumes
// (spec §6 "Tool result envelope"). Exactly one of the Ok/Err shapes is
// populated, distinguished by IsError.
type ToolReturn struct {
	IsError bool
	Output  string
	Message string
	Brief   string
	Extras  map[string]any
}

// timeoutMarker is the literal substring of shellsession.ErrTimeout's
// message ("shellsession: command execution timeout"). The session
// surfaces a deadline overrun as an error, not in its Result; the router
// then folds a failed route() into Result{Stderr: err.Error()}, which is
// where this substring is actually observed downstream.
const timeoutMarker = "command execution timeout"

var toolNameMisuse = regexp.MustCompile(`^Bash([\s(]|$)`)

// Tool is the Bash Tool (spec §4.4): call(command, restart) routed through
// the Command Router and shaped into a ToolReturn.
type Tool struct {
	router  *router.Router
	shell   *shellsession.Session
	sandbox *policy.SandboxManager

	logger  *observability.Logger
	metrics *observability.Metrics

	approval *policy.ApprovalChecker
	queue    *process.CommandQueue
}

// Deps bundles the shared, injectable collaborators a Bash Tool needs.
// createIsolatedCopy swaps Shell, gives the copy a fresh Sandbox unless one
// is supplied, and sets Lane to LaneSubagent; Logger, Metrics, Approval and
// Queue are reused unchanged. Approval and Queue/Lane are both
// optional: a nil Approval skips the approval gate, and a nil Queue
// dispatches NATIVE commands directly instead of through a lane.
type Deps struct {
	Shell    *shellsession.Session
	Sandbox  *policy.SandboxManager
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Approval *policy.ApprovalChecker
	Queue    *process.CommandQueue
	Lane     process.CommandLane
}

// New builds a Bash Tool wiring its own Router around deps.
func New(deps Deps) *Tool {
	rt := router.New(router.NewRegistry(), deps.Shell, newSandboxAdapter(deps.Sandbox), nil)
	if deps.Approval != nil {
		rt.SetApprovalChecker(deps.Approval)
	}
	if deps.Queue != nil {
		rt.SetCommandQueue(deps.Queue, deps.Lane)
	}
	return &Tool{
		router:   rt,
		shell:    deps.Shell,
		sandbox:  deps.Sandbox,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		approval: deps.Approval,
		queue:    deps.Queue,
	}
}

// Router exposes the tool's Router so callers (the sub-agent executor's
// permission filter, handler registration) can register BUILTIN_VERB and
// EXTENSION handlers against the same instance this tool dispatches
// through.
func (t *Tool) Router() *router.Router { return t.router }

// Name implements the subagent.Tool surface. The name is always "Bash";
// the Permission Filter relies on this staying constant across wrapping.
func (t *Tool) Name() string { return "Bash" }

// Call runs one Bash tool invocation end to end: validation, misuse
// detection, routing, timeout recovery, and result shaping.
func (t *Tool) Call(ctx context.Context, command string, restart bool) ToolReturn {
	start := time.Now()

	if strings.TrimSpace(command) == "" {
		return t.finish(ctx, start, "", ToolReturn{
			IsError: true,
			Output:  "command must not be empty",
			Message: "empty command",
			Brief:   "empty command",
			Extras:  map[string]any{"failureCategory": string(failure.InvalidUsage)},
		})
	}

	if toolNameMisuse.MatchString(command) {
		return t.finish(ctx, start, "", ToolReturn{
			IsError: true,
			Output: "the command argument must be the shell command itself, not the tool call syntax. " +
				`Example: use command="ls -la" rather than command="Bash(command=\"ls -la\")".`,
			Message: "tool-name-as-command misuse",
			Brief:   "misuse: tool name in command",
			Extras:  map[string]any{"failureCategory": string(failure.InvalidUsage)},
		})
	}

	future := t.router.Route(ctx, command, restart)
	result, err := future.Wait(ctx)
	if err != nil {
		if strings.Contains(err.Error(), timeoutMarker) {
			t.restartBestEffort()
		}
		return t.finish(ctx, start, router.BaseCommand(command), ToolReturn{
			IsError: true,
			Output:  err.Error(),
			Message: err.Error(),
			Brief:   "router error",
			Extras:  map[string]any{"failureCategory": string(failure.ExecutionError)},
		})
	}

	baseCmd := router.BaseCommand(command)

	if result.Blocked {
		return t.finish(ctx, start, baseCmd, ToolReturn{
			IsError: false,
			Output:  "",
			Message: result.BlockedReason,
			Extras: map[string]any{
				"type":          "sandbox_blocked",
				"resource":      result.BlockedResource,
				"blockedReason": result.BlockedReason,
			},
		})
	}

	timedOut := strings.Contains(result.Stderr, timeoutMarker)
	if timedOut {
		t.restartBestEffort()
	}

	output := composeOutput(result.Stdout, result.Stderr)
	if timedOut {
		output += "\nBash session restarted after timeout."
	}

	if result.ExitCode == 0 {
		return t.finish(ctx, start, baseCmd, ToolReturn{IsError: false, Output: output})
	}

	category := failure.Classify(result.Stderr)
	if failure.ShouldAttachSelfDescription(category) {
		output += failure.Hint(baseCmd)
	}

	return t.finish(ctx, start, baseCmd, ToolReturn{
		IsError: true,
		Output:  output,
		Message: result.Stderr,
		Brief:   fmt.Sprintf("%s: exit %d", baseCmd, result.ExitCode),
		Extras: map[string]any{
			"failureCategory": string(category),
			"baseCommand":     baseCmd,
			"exitCode":        result.ExitCode,
		},
	})
}

func (t *Tool) restartBestEffort() {
	_ = t.shell.Restart()
}

// composeOutput mirrors spec §4.4's display composition: stdout, a blank
// line, then "[stderr]\n<stderr>" when stderr is non-empty; the canonical
// empty-output string when there is nothing to show.
func composeOutput(stdout, stderr string) string {
	if stdout == "" && stderr == "" {
		return "(Command executed successfully with no output)"
	}
	var b strings.Builder
	b.WriteString(stdout)
	if stderr != "" {
		if stdout != "" {
			b.WriteString("\n\n")
		}
		b.WriteString("[stderr]\n")
		b.WriteString(stderr)
	}
	return b.String()
}

func (t *Tool) finish(ctx context.Context, start time.Time, baseCmd string, ret ToolReturn) ToolReturn {
	duration := time.Since(start)
	status := "ok"
	var failureCategory string
	if ret.IsError {
		status = "error"
		if fc, ok := ret.Extras["failureCategory"].(string); ok {
			failureCategory = fc
		}
	}

	if t.metrics != nil {
		t.metrics.RecordToolExecution(baseCmd, status, duration.Seconds())
		if failureCategory != "" {
			t.metrics.RecordFailure(failureCategory)
		}
	}
	if t.logger != nil {
		args := []any{
			"base_command", baseCmd,
			"exit_code", extraInt(ret.Extras, "exitCode"),
			"duration_ms", duration.Milliseconds(),
		}
		if failureCategory != "" {
			args = append(args, "failure_category", failureCategory)
		}
		if ret.IsError {
			t.logger.Warn(ctx, "bash tool call failed", args...)
		} else {
			t.logger.Info(ctx, "bash tool call", args...)
		}
	}

	return ret
}

func extraInt(extras map[string]any, key string) int {
	if v, ok := extras[key].(int); ok {
		return v
	}
	return 0
}

// IsolatedCopyOverrides lets a caller (the sub-agent executor) override
// the collaborators createIsolatedCopy would otherwise share with the
// parent, typically just a fresh Shell and/or Sandbox.
type IsolatedCopyOverrides struct {
	Shell   *shellsession.Session
	Sandbox *policy.SandboxManager
}

// CreateIsolatedCopy builds a new Bash Tool that shares this tool's
// logger/metrics but gets its own shell session and, unless overridden,
// its own fresh sandbox manager (spec §4.4 "Isolated copy"). This is the
// primitive sub-agents use to get a shell without inheriting
// process-level state from the parent agent.
func (t *Tool) CreateIsolatedCopy(overrides IsolatedCopyOverrides) *Tool {
	sandbox := overrides.Sandbox
	if sandbox == nil {
		sandbox = policy.NewSandboxManager(nil)
	}

	// A sub-agent's commands still flow through the parent's approval gate
	// and lane queue, but on the LaneSubagent lane so they never serialize
	// against the top-level agent's own NATIVE commands.
	return New(Deps{
		Shell:    overrides.Shell,
		Sandbox:  sandbox,
		Logger:   t.logger,
		Metrics:  t.metrics,
		Approval: t.approval,
		Queue:    t.queue,
		Lane:     process.LaneSubagent,
	})
}

// Execute implements the subagent.Tool interface, adapting Call's richer
// ToolReturn into the narrower models.ToolResult the generic tool
// registry and concurrent executor deal in.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	if err := ValidateParams(params); err != nil {
		return &models.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	var call CallParams
	if err := json.Unmarshal(params, &call); err != nil {
		return &models.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	ret := t.Call(ctx, call.Command, call.Restart)
	return &models.ToolResult{Content: ret.Output, IsError: ret.IsError}, nil
}
