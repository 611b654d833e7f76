package subagent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/router"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
)

// TypeRegistry maps a sub-agent `type` name to its configured
// {systemPrompt, permissions, description} (spec §4.6 "Setup"). It is the
// resolution step a `task:*` command needs before the executor can run.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]TypeConfig
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]TypeConfig)}
}

// Register adds or replaces the configuration for name.
func (r *TypeRegistry) Register(name string, cfg TypeConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = cfg
}

// Get resolves name to its configuration.
func (r *TypeRegistry) Get(name string) (TypeConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.types[name]
	return cfg, ok
}

// DefaultTypeRegistry seeds the two general-purpose sub-agent types every
// deployment of this core gets out of the box. Both exclude `task:` from
// their own permissions, the recursion guard spec §4.6 describes as policy
// rather than a depth limit the executor itself enforces.
func DefaultTypeRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	r.Register("general-purpose", TypeConfig{
		SystemPrompt: "You are a general-purpose sub-agent. Use the Bash tool to accomplish the task described in the prompt, then report your findings as plain text.",
		Permissions:  Permissions{Exclude: []string{"task:"}},
		Description:  "General-purpose task execution",
	})
	r.Register("explore", TypeConfig{
		SystemPrompt: "You are a read-only exploration sub-agent. Investigate the codebase to answer the prompt. Do not modify any files.",
		Permissions:  Permissions{Exclude: []string{"task:", "write", "edit"}},
		Description:  "Read-only codebase exploration",
	})
	return r
}

// TaskHandler is the router.Handler a `task:` prefix resolves to: the
// bridge between the Command Router and the Sub-Agent Executor (spec
// §4.6, invoked "by the task:* handler").
type TaskHandler struct {
	executor    *Executor
	types       *TypeRegistry
	shellConfig shellsession.Config
	progress    ProgressFunc
}

// NewTaskHandler constructs the task: handler. shellConfig is used to spawn
// each sub-agent's own isolated shell session (never the parent's).
func NewTaskHandler(executor *Executor, types *TypeRegistry, shellConfig shellsession.Config, progress ProgressFunc) *TaskHandler {
	return &TaskHandler{executor: executor, types: types, shellConfig: shellConfig, progress: progress}
}

// Handle implements router.Handler. It expects a command of the shape
// `task:<type> --prompt "<text>" [--description "<text>"]` (spec.md §8
// scenario 6), resolves <type> against the registry, and runs one bounded
// sub-agent to completion.
func (h *TaskHandler) Handle(ctx context.Context, cmd router.Command) (router.Result, error) {
	typeName := strings.TrimPrefix(cmd.BaseToken, "task:")
	if typeName == "" {
		return router.Result{
			Stderr:   `usage: task:<type> --prompt "<text>" [--description "<text>"]`,
			ExitCode: 1,
		}, nil
	}

	cfg, ok := h.types.Get(typeName)
	if !ok {
		return router.Result{
			Stderr:   fmt.Sprintf("unknown command: task:%s", typeName),
			ExitCode: 1,
		}, nil
	}

	args, err := cmd.Args()
	if err != nil {
		return router.Result{Stderr: fmt.Sprintf("usage: invalid arguments: %v", err), ExitCode: 1}, nil
	}
	prompt, description, err := parseTaskArgs(args)
	if err != nil {
		return router.Result{Stderr: err.Error(), ExitCode: 1}, nil
	}
	if description != "" {
		cfg.Description = description
	}

	outcome, err := h.executor.Execute(ctx, typeName, cfg, prompt, h.spawnShell, h.progress)
	if err != nil {
		return router.Result{Stderr: err.Error(), ExitCode: 1}, nil
	}

	if outcome.Success {
		return router.Result{Stdout: outcome.FinalText, ExitCode: 0}, nil
	}
	if outcome.Reason == "aborted" {
		return router.Result{Stderr: outcome.Reason, ExitCode: 130}, nil
	}
	return router.Result{Stderr: outcome.Reason, ExitCode: 1}, nil
}

func (h *TaskHandler) spawnShell() (*shellsession.Session, error) {
	return shellsession.New(h.shellConfig)
}

// parseTaskArgs pulls --prompt (required) and --description (optional) out
// of a task: command's re-tokenized arguments. There is no flag library in
// play here; two recognized flags don't earn one.
func parseTaskArgs(args []string) (prompt, description string, err error) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--prompt":
			if i+1 >= len(args) {
				return "", "", fmt.Errorf(`usage: --prompt requires a value`)
			}
			i++
			prompt = args[i]
		case "--description":
			if i+1 >= len(args) {
				return "", "", fmt.Errorf(`usage: --description requires a value`)
			}
			i++
			description = args[i]
		default:
			return "", "", fmt.Errorf("unexpected argument: %q", args[i])
		}
	}
	if prompt == "" {
		return "", "", fmt.Errorf(`usage: task:<type> --prompt "<text>" [--description "<text>"]`)
	}
	return prompt, description, nil
}
