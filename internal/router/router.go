package router

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/observability"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/policy"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/process"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
)

// Command is a normalized, partitioned command as routed (spec §3
// "Command (input)"): a base token plus its raw argument string, re-split
// respecting quotes when a handler needs discrete args.
type Command struct {
	Raw     string
	Restart bool

	BaseToken string
	ArgString string
}

// Args re-tokenizes ArgString respecting single/double quotes, mirroring
// the shell session's own startup-command tokenizer.
func (c Command) Args() ([]string, error) {
	if strings.TrimSpace(c.ArgString) == "" {
		return nil, nil
	}
	return shellsession.TokenizeArgs(c.ArgString)
}

// Result is what Route returns: either a successful shell/handler outcome
// or a sandbox denial. It intentionally does not carry exit-code
// classification; that is the Bash Tool's job (spec §4.4), since only the
// tool layer knows how to shape failures into ToolReturn.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// Blocked is set when a configured SandboxPolicy denied the command.
	// A blocked result is non-fatal: it is not an error, just an empty,
	// annotated outcome.
	Blocked         bool
	BlockedReason   string
	BlockedResource string

	Layer Layer
}

// SandboxPolicy gates NATIVE commands that pass the write-guard. Router
// calls it with the command and working directory; a nil policy means no
// sandboxing is configured and NATIVE commands go straight to the shell.
type SandboxPolicy interface {
	Execute(ctx context.Context, command, cwd string) (SandboxResult, error)
}

// SandboxResult is the verdict and, if allowed, captured output of a
// sandbox-mediated execution.
type SandboxResult struct {
	Allowed         bool
	Stdout          string
	Stderr          string
	ExitCode        int
	BlockedReason   string
	BlockedResource string
}

// Shell is the narrow surface of the persistent shell session the router
// needs: execute one command to completion, or restart the child.
type Shell interface {
	Execute(ctx context.Context, command string) (shellsession.Result, error)
	Restart() error
}

// Router is the Command Router (spec §4.3): classifies into a layer via
// the Handler Registry, applies the write-guard and sandbox admission to
// NATIVE commands, and dispatches BUILTIN_VERB/EXTENSION commands to
// their resolved handler.
type Router struct {
	registry *Registry
	shell    Shell
	sandbox  SandboxPolicy
	cwd      func() string

	approval *policy.ApprovalChecker
	queue    *process.CommandQueue
	lane     process.CommandLane
	tracer   *observability.Tracer
}

// New constructs a Router. sandbox may be nil (no sandboxing configured).
// cwd, if nil, defaults to reporting "".
func New(registry *Registry, shell Shell, sandbox SandboxPolicy, cwd func() string) *Router {
	if cwd == nil {
		cwd = func() string { return "" }
	}
	return &Router{registry: registry, shell: shell, sandbox: sandbox, cwd: cwd, lane: process.LaneMain}
}

// SetApprovalChecker wires the approval gate a NATIVE command or extension
// tool call is consulted against before dispatch. A nil checker (the
// default) skips the gate entirely.
func (rt *Router) SetApprovalChecker(c *policy.ApprovalChecker) {
	rt.approval = c
}

// SetCommandQueue wires the lane queue every NATIVE command is serialized
// through; the write-guard and sandbox admission run inside the queued
// task. lane identifies this router instance's caller
// (LaneMain for the top-level agent, LaneSubagent for a nested one, and so
// on); an empty lane falls back to LaneMain. A nil queue (the default)
// skips the queue and dispatches directly.
func (rt *Router) SetCommandQueue(q *process.CommandQueue, lane process.CommandLane) {
	rt.queue = q
	if lane == "" {
		lane = process.LaneMain
	}
	rt.lane = lane
}

// SetSandboxPolicy swaps the sandbox policy, e.g. when a sub-agent gets
// its own fresh sandbox manager (spec §4.4 "Isolated copy").
func (rt *Router) SetSandboxPolicy(p SandboxPolicy) {
	rt.sandbox = p
}

// SetTracer wires a span around every route() call. A nil tracer (the
// default) skips span creation entirely.
func (rt *Router) SetTracer(t *observability.Tracer) {
	rt.tracer = t
}

// SetToolExecutor is the router-level half of spec §4.3's "Dependency
// swap": whenever the LLM client or tool executor binding changes, the
// registry's dependent handler instances are invalidated so they are
// lazily reconstructed against the new dependency on next use.
func (rt *Router) SetToolExecutor() {
	rt.registry.InvalidateForExecutorChange()
}

// RegisterHandler registers a live handler on the router's own registry, so
// a caller holding only the Router can add BUILTIN_VERB and EXTENSION
// handlers to it.
func (rt *Router) RegisterHandler(pattern string, layer Layer, mode MatchMode, h Handler) {
	rt.registry.RegisterHandler(pattern, layer, mode, h)
}

// Normalize trims input and strips a leading "/" from a "/skill:" token,
// then partitions into base token and argument string (spec §3
// "Command (input)").
func Normalize(raw string) Command {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "/skill:") {
		trimmed = strings.TrimPrefix(trimmed, "/")
	}

	base := trimmed
	args := ""
	if idx := strings.IndexFunc(trimmed, isSpace); idx >= 0 {
		base = trimmed[:idx]
		args = strings.TrimLeft(trimmed[idx:], " \t")
	}

	return Command{Raw: trimmed, BaseToken: base, ArgString: args}
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

// Route runs the full dispatch algorithm and returns a cancellable
// Future. Cancelling the future aborts the in-flight handler call and,
// for the restart path, races the restart step.
func (rt *Router) Route(ctx context.Context, raw string, restart bool) *Future {
	ctx, cancel := context.WithCancel(ctx)
	future := newFuture(cancel)

	go func() {
		r, err := rt.route(ctx, raw, restart)
		if err != nil {
			future.settle(Result{Stdout: "", Stderr: err.Error(), ExitCode: 1})
			return
		}
		future.settle(r)
	}()

	return future
}

func (rt *Router) route(ctx context.Context, raw string, restart bool) (Result, error) {
	if restart {
		restarted := make(chan error, 1)
		go func() { restarted <- rt.shell.Restart() }()
		select {
		case err := <-restarted:
			if err != nil {
				return Result{}, fmt.Errorf("router: restart: %w", err)
			}
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	cmd := Normalize(raw)
	if cmd.BaseToken == "" {
		return Result{Stdout: "", Stderr: "empty command", ExitCode: 1}, nil
	}

	entry, found, err := rt.registry.Lookup(cmd.BaseToken)
	if err != nil {
		return Result{}, err
	}

	layer := Native
	if found {
		layer = entry.Layer
	}

	if rt.tracer != nil {
		var span trace.Span
		ctx, span = rt.tracer.TraceCommandRoute(ctx, cmd.BaseToken, string(layer))
		defer span.End()
	}

	// BUILTIN_VERB handlers (such as the task: handler) are trusted
	// built-in verbs; the approval gate only guards NATIVE shell
	// commands and EXTENSION tool calls.
	if layer != BuiltinVerb {
		if blocked, ok := rt.checkApproval(ctx, cmd, layer); ok {
			return blocked, nil
		}
	}

	if found {
		return rt.dispatchHandler(ctx, entry, cmd)
	}

	if rt.queue != nil {
		return process.EnqueueInLane(rt.queue, rt.lane, func(qctx context.Context) (Result, error) {
			return rt.dispatchNative(qctx, cmd)
		}, &process.EnqueueOptions{Context: ctx})
	}

	return rt.dispatchNative(ctx, cmd)
}

// checkApproval consults the configured ApprovalChecker, if any, and
// returns a Blocked result distinct from a sandbox denial when the base
// command is denylisted or still awaiting an external decision.
func (rt *Router) checkApproval(ctx context.Context, cmd Command, layer Layer) (Result, bool) {
	if rt.approval == nil {
		return Result{}, false
	}

	baseCmd := BaseCommand(cmd.Raw)
	decision, reason := rt.approval.Check(baseCmd)

	switch decision {
	case policy.ApprovalDenied:
		return Result{Blocked: true, BlockedReason: reason, BlockedResource: baseCmd, Layer: layer}, true
	case policy.ApprovalPending:
		_, _ = rt.approval.CreateRequest(ctx, "", baseCmd, reason)
		return Result{Blocked: true, BlockedReason: "awaiting approval", BlockedResource: baseCmd, Layer: layer}, true
	default:
		return Result{}, false
	}
}

func (rt *Router) dispatchHandler(ctx context.Context, entry *Entry, cmd Command) (Result, error) {
	r, err := entry.Handler.Handle(ctx, cmd)
	if err != nil {
		return Result{}, err
	}
	r.Layer = entry.Layer
	return r, nil
}

func (rt *Router) dispatchNative(ctx context.Context, cmd Command) (Result, error) {
	if err := checkWriteGuard(cmd.Raw); err != nil {
		return Result{Stdout: "", Stderr: err.Error(), ExitCode: 1, Layer: Native}, nil
	}

	if rt.sandbox != nil {
		sr, err := rt.sandbox.Execute(ctx, cmd.Raw, rt.cwd())
		if err != nil {
			return Result{}, fmt.Errorf("router: sandbox: %w", err)
		}
		if !sr.Allowed {
			return Result{
				Blocked:         true,
				BlockedReason:   sr.BlockedReason,
				BlockedResource: sr.BlockedResource,
				Layer:           Native,
			}, nil
		}
		return Result{
			Stdout:   sr.Stdout,
			Stderr:   sr.Stderr,
			ExitCode: sr.ExitCode,
			Layer:    Native,
		}, nil
	}

	res, err := rt.shell.Execute(ctx, cmd.Raw)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		Layer:    Native,
	}, nil
}

// BaseCommand computes the "base command" used for failure hints and
// permission-filter matching (spec §4.4): for mcp:*/skill:* it is the
// whole colon-segmented prefix up to the first space, otherwise the
// first whitespace-delimited token.
func BaseCommand(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "mcp:") || strings.HasPrefix(trimmed, "skill:") {
		if idx := strings.IndexFunc(trimmed, isSpace); idx >= 0 {
			return trimmed[:idx]
		}
		return trimmed
	}
	if idx := strings.IndexFunc(trimmed, isSpace); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}
