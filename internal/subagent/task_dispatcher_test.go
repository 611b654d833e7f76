package subagent

import (
	"context"
	"testing"
)

func TestTaskDispatcherRunsSpecsConcurrently(t *testing.T) {
	provider := &scriptedProvider{steps: []CompletionResult{{Text: "reviewer done"}}}
	baseTool := newTestBaseTool(t)
	exec := NewExecutor(provider, baseTool, ExecutorConfig{})
	dispatcher := NewTaskDispatcher(exec)

	specs := []TaskSpec{
		{TypeName: "reviewer", Config: TypeConfig{Permissions: Permissions{Include: []string{}}}, Input: "review A"},
		{TypeName: "reviewer", Config: TypeConfig{Permissions: Permissions{Include: []string{}}}, Input: "review B"},
	}

	outcomes, err := dispatcher.DispatchAll(context.Background(), specs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if !o.Success {
			t.Errorf("outcome %d: expected success, got %+v", i, o)
		}
	}
}

func TestTaskDispatcherAssignsDistinctSubAgentIDs(t *testing.T) {
	provider := &scriptedProvider{steps: []CompletionResult{{Text: "done"}}}
	baseTool := newTestBaseTool(t)
	exec := NewExecutor(provider, baseTool, ExecutorConfig{})
	dispatcher := NewTaskDispatcher(exec)

	specs := []TaskSpec{
		{TypeName: "reviewer", Config: TypeConfig{Permissions: Permissions{Include: []string{}}}, Input: "A"},
		{TypeName: "reviewer", Config: TypeConfig{Permissions: Permissions{Include: []string{}}}, Input: "B"},
		{TypeName: "reviewer", Config: TypeConfig{Permissions: Permissions{Include: []string{}}}, Input: "C"},
	}

	outcomes, err := dispatcher.DispatchAll(context.Background(), specs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[string]bool)
	for _, o := range outcomes {
		if seen[o.ID] {
			t.Fatalf("expected each concurrently dispatched sub-agent to get a distinct id, got duplicate %q", o.ID)
		}
		seen[o.ID] = true
	}
}
