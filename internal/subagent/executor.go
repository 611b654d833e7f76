package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/bashtool"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/observability"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/policy"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/router"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

// Permissions configures a sub-agent type's tool visibility (spec §4.5):
// Include == an empty, non-nil slice means pure-reasoning mode (no tools
// at all); Exclude is a list of base-command patterns the Permission
// Filter rejects. Async is a separate list of base-command patterns that
// still run, but are dispatched to a background job instead of awaited
// inline within the generate/act loop.
type Permissions struct {
	Include []string
	Exclude []string
	Async   []string
}

// TypeConfig is what a sub-agent `type` resolves to (spec §4.6 "Setup").
type TypeConfig struct {
	SystemPrompt string
	Permissions  Permissions
	Description  string
}

// ExecutorConfig bounds one sub-agent run.
type ExecutorConfig struct {
	MaxIterations     int
	ToolResultByteCap int
	Model             string
	MaxTokens         int
	ExecConfig        ExecConfig

	// Jobs backs async tool dispatch (Permissions.Async). Nil disables it:
	// calls that would otherwise be asynchronous just run inline instead.
	Jobs *shellsession.JobRegistry

	// Metrics and Events are optional observability sinks for completed
	// sub-agent runs. Either may be nil.
	Metrics *observability.Metrics
	Events  *observability.EventRecorder

	// Tracer wraps each run in a span covering the full generate/act loop.
	// Nil skips span creation.
	Tracer *observability.Tracer
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 25
	}
	if c.ToolResultByteCap <= 0 {
		c.ToolResultByteCap = 16 * 1024
	}
	c.ExecConfig = c.ExecConfig.withDefaults()
	return c
}

// Executor drives the bounded nested agent loop that a `task:*` handler
// invokes: build an isolated tool set, call the Provider until it stops
// requesting tools or a hard cap/abort cuts the loop short.
type Executor struct {
	provider Provider
	baseTool *bashtool.Tool
	config   ExecutorConfig
	nextID   atomic.Int64
}

// NewExecutor constructs an Executor. baseTool is the parent agent's Bash
// Tool, used only for its CreateIsolatedCopy primitive — the executor
// never shares the parent's shell session with a sub-agent.
func NewExecutor(provider Provider, baseTool *bashtool.Tool, config ExecutorConfig) *Executor {
	return &Executor{provider: provider, baseTool: baseTool, config: config.withDefaults()}
}

// Outcome is the sub-agent run's final result.
type Outcome struct {
	ID        string
	FinalText string
	Success   bool
	ToolCount int
	Duration  time.Duration
	Reason    string
}

// shellFactory lets callers (and tests) control how a sub-agent's
// isolated shell session is spawned, without the executor importing
// config directly.
type shellFactory func() (*shellsession.Session, error)

// Execute runs one sub-agent to completion (spec §4.6 "Loop"). progress
// receives SubAgentStart/SubAgentToolStart/SubAgentToolEnd/SubAgentComplete
// events; a nil progress is a valid no-op sink.
func (e *Executor) Execute(ctx context.Context, typeName string, cfg TypeConfig, input string, spawnShell shellFactory, progress ProgressFunc) (Outcome, error) {
	id := fmt.Sprintf("subagent-%d", e.nextID.Add(1))
	start := time.Now()

	emit(progress, models.ProgressEvent{
		Kind:                models.ProgressSubAgentStart,
		SubAgentID:          id,
		SubAgentType:        typeName,
		SubAgentDescription: cfg.Description,
	})

	if e.config.Events != nil {
		e.config.Events.RecordRunStart(observability.AddRunID(ctx, id), id, map[string]interface{}{
			"sub_agent_type": typeName,
		})
	}
	if e.config.Tracer != nil {
		var span trace.Span
		ctx, span = e.config.Tracer.TraceSubAgentRun(ctx, id, typeName)
		defer span.End()
	}

	registry := NewToolRegistry()
	pureReasoning := cfg.Permissions.Include != nil && len(cfg.Permissions.Include) == 0

	var shell *shellsession.Session
	if !pureReasoning {
		var err error
		shell, err = spawnShell()
		if err != nil {
			return e.complete(ctx, id, typeName, start, 0, false, "failed to spawn isolated shell: "+err.Error(), progress)
		}
		defer shell.Kill()

		isolated := e.baseTool.CreateIsolatedCopy(bashtool.IsolatedCopyOverrides{
			Shell:   shell,
			Sandbox: policy.NewSandboxManager(nil),
		})
		filtered := NewPermissionFilter(isolated, cfg.Permissions.Include, cfg.Permissions.Exclude, typeName)
		registry.Register(filtered)
	}

	toolExecutor := NewToolExecutor(registry, e.config.ExecConfig)

	history := []CompletionMessage{{Role: models.RoleUser, Content: input}}
	toolCount := 0

	for iter := 0; iter < e.config.MaxIterations; iter++ {
		if ctx.Err() != nil {
			return e.complete(ctx, id, typeName, start, toolCount, false, "aborted", progress)
		}

		observability.EmitRunAttempt(&observability.RunAttemptEvent{RunID: id, Attempt: iter + 1})

		result, err := e.provider.Complete(ctx, CompletionRequest{
			Model:     e.config.Model,
			System:    cfg.SystemPrompt,
			Messages:  history,
			Tools:     toolSpecs(registry),
			MaxTokens: e.config.MaxTokens,
		})
		if err != nil {
			return e.complete(ctx, id, typeName, start, toolCount, false, err.Error(), progress)
		}

		if len(result.ToolCalls) == 0 {
			return e.completeWithText(ctx, id, typeName, start, toolCount, result.Text, progress)
		}

		history = append(history, CompletionMessage{
			Role:      models.RoleAssistant,
			Content:   result.Text,
			ToolCalls: result.ToolCalls,
		})

		if ctx.Err() != nil {
			return e.complete(ctx, id, typeName, start, toolCount, false, "aborted", progress)
		}

		syncCalls, asyncCalls := partitionAsync(result.ToolCalls, cfg.Permissions.Async, e.config.Jobs)

		results := toolExecutor.ExecuteConcurrently(ctx, syncCalls, subAgentProgress(id, progress))
		toolCount += len(results) + len(asyncCalls)

		toolResults := make([]models.ToolResult, 0, len(results)+len(asyncCalls))
		for _, r := range results {
			toolResults = append(toolResults, models.ToolResult{
				ToolCallID: r.Result.ToolCallID,
				Content:    truncate(r.Result.Content, e.config.ToolResultByteCap),
				IsError:    r.Result.IsError,
			})
		}
		if len(asyncCalls) > 0 {
			dispatcher := NewAsyncDispatcher(e.config.Jobs, toolExecutor)
			for _, tc := range asyncCalls {
				toolResults = append(toolResults, dispatcher.Dispatch(tc, typeName, id, subAgentProgress(id, progress)))
			}
		}
		history = append(history, CompletionMessage{Role: models.RoleTool, ToolResults: toolResults})
	}

	return e.complete(ctx, id, typeName, start, toolCount, false, "iteration limit", progress)
}

func (e *Executor) completeWithText(ctx context.Context, id, typeName string, start time.Time, toolCount int, text string, progress ProgressFunc) (Outcome, error) {
	outcome := Outcome{ID: id, FinalText: text, Success: true, ToolCount: toolCount, Duration: time.Since(start)}
	emit(progress, models.ProgressEvent{
		Kind:       models.ProgressSubAgentComplete,
		SubAgentID: id,
		Success:    true,
		ToolCount:  toolCount,
		DurationMs: outcome.Duration.Milliseconds(),
	})
	e.recordCompletion(ctx, id, typeName, outcome)
	return outcome, nil
}

func (e *Executor) complete(ctx context.Context, id, typeName string, start time.Time, toolCount int, success bool, reason string, progress ProgressFunc) (Outcome, error) {
	outcome := Outcome{ID: id, Success: success, ToolCount: toolCount, Duration: time.Since(start), Reason: reason}
	emit(progress, models.ProgressEvent{
		Kind:       models.ProgressSubAgentComplete,
		SubAgentID: id,
		Success:    success,
		ToolCount:  toolCount,
		DurationMs: outcome.Duration.Milliseconds(),
		Error:      reason,
	})
	e.recordCompletion(ctx, id, typeName, outcome)
	return outcome, nil
}

// recordCompletion reports a finished sub-agent run to the configured
// metrics/events sinks, if any.
func (e *Executor) recordCompletion(ctx context.Context, id, typeName string, outcome Outcome) {
	status := "success"
	if !outcome.Success {
		status = "failed"
	}
	if e.config.Metrics != nil {
		e.config.Metrics.RecordSubAgentRun(typeName, status)
	}
	if e.config.Events != nil {
		var err error
		if !outcome.Success {
			err = fmt.Errorf("%s", outcome.Reason)
		}
		e.config.Events.RecordRunEnd(observability.AddRunID(ctx, id), outcome.Duration, err)
	}
}

// subAgentProgress wraps a top-level ProgressFunc so the generic
// ToolStart/ToolEnd events a concurrent tool-execution pool emits surface
// as SubAgentToolStart/SubAgentToolEnd, tagged with this sub-agent's id.
func subAgentProgress(subAgentID string, progress ProgressFunc) ProgressFunc {
	return func(e models.ProgressEvent) {
		switch e.Kind {
		case models.ProgressToolStart:
			e.Kind = models.ProgressSubAgentToolStart
		case models.ProgressToolEnd:
			e.Kind = models.ProgressSubAgentToolEnd
		}
		e.SubAgentID = subAgentID
		emit(progress, e)
	}
}

func toolSpecs(registry *ToolRegistry) []ToolSpec {
	names := registry.Names()
	specs := make([]ToolSpec, 0, len(names))
	schema, _ := bashtool.Schema()
	for _, name := range names {
		specs = append(specs, ToolSpec{
			Name:        name,
			Description: "Execute a shell command",
			Schema:      json.RawMessage(schema),
		})
	}
	return specs
}

// partitionAsync splits calls into ones the generate/act loop awaits
// inline and ones dispatched to a background job, per cfg.Permissions'
// Async patterns. A nil jobs registry disables the split entirely: every
// call runs synchronously, since there is nowhere to hand an async one
// off to.
func partitionAsync(calls []models.ToolCall, patterns []string, jobs *shellsession.JobRegistry) (sync, async []models.ToolCall) {
	if len(patterns) == 0 || jobs == nil {
		return calls, nil
	}
	for _, tc := range calls {
		if matchesAsyncPattern(tc, patterns) {
			async = append(async, tc)
		} else {
			sync = append(sync, tc)
		}
	}
	return sync, async
}

func matchesAsyncPattern(tc models.ToolCall, patterns []string) bool {
	var p bashToolParams
	if err := json.Unmarshal(tc.Input, &p); err != nil || p.Command == "" {
		return false
	}
	baseCmd := router.BaseCommand(p.Command)
	for _, pattern := range patterns {
		if pattern != "" && policy.MatchPattern(pattern, baseCmd) {
			return true
		}
	}
	return false
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n...(truncated)"
}
