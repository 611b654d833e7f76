package subagent

import (
	"context"
	"testing"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/router"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
)

func newTestTaskHandler(t *testing.T, provider Provider) *TaskHandler {
	t.Helper()
	baseTool := newTestBaseTool(t)
	exec := NewExecutor(provider, baseTool, ExecutorConfig{})
	types := NewTypeRegistry()
	types.Register("reviewer", TypeConfig{Permissions: Permissions{Include: []string{}}, Description: "reviews things"})
	return NewTaskHandler(exec, types, shellsession.Config{ShellCommand: "/bin/bash"}, nil)
}

func TestTaskHandlerRunsSubAgentToCompletion(t *testing.T) {
	provider := &scriptedProvider{steps: []CompletionResult{{Text: "the review is clean"}}}
	h := newTestTaskHandler(t, provider)

	cmd := router.Normalize(`task:reviewer --prompt "review this diff"`)
	result, err := h.Handle(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 || result.Stdout != "the review is clean" {
		t.Fatalf("got %+v", result)
	}
}

func TestTaskHandlerUnknownTypeIsCommandNotFound(t *testing.T) {
	h := newTestTaskHandler(t, &scriptedProvider{})

	cmd := router.Normalize(`task:ghost --prompt "do something"`)
	result, err := h.Handle(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode == 0 {
		t.Fatalf("expected a non-zero exit code for an unknown sub-agent type, got %+v", result)
	}
	if result.Stderr != "unknown command: task:ghost" {
		t.Fatalf("expected an unknown-command stderr classifiable as CommandNotFound, got %q", result.Stderr)
	}
}

func TestTaskHandlerMissingPromptIsUsageError(t *testing.T) {
	h := newTestTaskHandler(t, &scriptedProvider{})

	cmd := router.Normalize(`task:reviewer --description "no prompt given"`)
	result, err := h.Handle(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode == 0 {
		t.Fatalf("expected a usage error when --prompt is missing, got %+v", result)
	}
}

func TestTaskHandlerAbortedRunMapsToExitCode130(t *testing.T) {
	h := newTestTaskHandler(t, &scriptedProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := router.Normalize(`task:reviewer --prompt "review this"`)
	result, err := h.Handle(ctx, cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 130 {
		t.Fatalf("expected exit code 130 on an aborted run, got %+v", result)
	}
}

func TestDefaultTypeRegistryExcludesNestedTasks(t *testing.T) {
	types := DefaultTypeRegistry()
	for _, name := range []string{"general-purpose", "explore"} {
		cfg, ok := types.Get(name)
		if !ok {
			t.Fatalf("expected a default config for %q", name)
		}
		found := false
		for _, pattern := range cfg.Permissions.Exclude {
			if pattern == "task:" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected %q to exclude task: from its own permissions (recursion guard), got %+v", name, cfg.Permissions.Exclude)
		}
	}
}
