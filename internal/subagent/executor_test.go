package subagent

import (
	"context"
	"testing"

	"github.com/BaqiF2/Synapse-Agent-sub005/internal/bashtool"
	"github.com/BaqiF2/Synapse-Agent-sub005/internal/shellsession"
	"github.com/BaqiF2/Synapse-Agent-sub005/pkg/models"
)

type scriptedProvider struct {
	steps []CompletionResult
	calls int
}

func (p *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if p.calls >= len(p.steps) {
		return &CompletionResult{Text: "done"}, nil
	}
	r := p.steps[p.calls]
	p.calls++
	return &r, nil
}

func newTestBaseTool(t *testing.T) *bashtool.Tool {
	t.Helper()
	shell, err := shellsession.New(shellsession.Config{ShellCommand: "/bin/bash"})
	if err != nil {
		t.Fatalf("failed to spawn test shell: %v", err)
	}
	t.Cleanup(shell.Kill)
	return bashtool.New(bashtool.Deps{Shell: shell})
}

func testShellFactory(t *testing.T) shellFactory {
	return func() (*shellsession.Session, error) {
		s, err := shellsession.New(shellsession.Config{ShellCommand: "/bin/bash"})
		if err == nil {
			t.Cleanup(s.Kill)
		}
		return s, err
	}
}

func TestExecutorPureReasoningModeNeverSpawnsShell(t *testing.T) {
	provider := &scriptedProvider{steps: []CompletionResult{{Text: "the answer is 42"}}}
	baseTool := newTestBaseTool(t)
	exec := NewExecutor(provider, baseTool, ExecutorConfig{})

	spawned := false
	spawnShell := func() (*shellsession.Session, error) {
		spawned = true
		return nil, nil
	}

	outcome, err := exec.Execute(context.Background(), "reviewer", TypeConfig{
		Permissions: Permissions{Include: []string{}},
	}, "review this", spawnShell, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.FinalText != "the answer is 42" {
		t.Fatalf("got %+v", outcome)
	}
	if spawned {
		t.Fatal("expected pure-reasoning mode to never call spawnShell")
	}
}

func TestExecutorStopsWhenNoMoreToolCalls(t *testing.T) {
	provider := &scriptedProvider{steps: []CompletionResult{{Text: "final answer"}}}
	baseTool := newTestBaseTool(t)
	exec := NewExecutor(provider, baseTool, ExecutorConfig{})

	outcome, err := exec.Execute(context.Background(), "coder", TypeConfig{}, "do something", testShellFactory(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success || outcome.FinalText != "final answer" {
		t.Fatalf("got %+v", outcome)
	}
}

func TestExecutorHitsIterationLimit(t *testing.T) {
	toolCall := models.ToolCall{ID: "t1", Name: "Bash", Input: []byte(`{"command":"echo hi"}`)}
	provider := &scriptedProvider{steps: []CompletionResult{
		{ToolCalls: []models.ToolCall{toolCall}},
		{ToolCalls: []models.ToolCall{toolCall}},
	}}
	baseTool := newTestBaseTool(t)
	exec := NewExecutor(provider, baseTool, ExecutorConfig{MaxIterations: 2})

	outcome, err := exec.Execute(context.Background(), "coder", TypeConfig{}, "loop forever", testShellFactory(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Success {
		t.Fatalf("expected the iteration cap to end the run unsuccessfully, got %+v", outcome)
	}
	if outcome.Reason != "iteration limit" {
		t.Fatalf("got reason %q", outcome.Reason)
	}
}

func TestExecutorEmitsSubAgentLifecycleEvents(t *testing.T) {
	provider := &scriptedProvider{steps: []CompletionResult{{Text: "done"}}}
	baseTool := newTestBaseTool(t)
	exec := NewExecutor(provider, baseTool, ExecutorConfig{})

	var kinds []models.ProgressEventKind
	_, err := exec.Execute(context.Background(), "coder", TypeConfig{}, "input", testShellFactory(t), func(e models.ProgressEvent) {
		kinds = append(kinds, e.Kind)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != models.ProgressSubAgentStart || kinds[1] != models.ProgressSubAgentComplete {
		t.Fatalf("got %v", kinds)
	}
}

func TestPartitionAsyncSplitsMatchingCalls(t *testing.T) {
	sync := models.ToolCall{ID: "1", Name: "Bash", Input: []byte(`{"command":"ls"}`)}
	async := models.ToolCall{ID: "2", Name: "Bash", Input: []byte(`{"command":"npm install"}`)}

	jobs := shellsession.NewJobRegistry(nil)
	syncCalls, asyncCalls := partitionAsync([]models.ToolCall{sync, async}, []string{"npm"}, jobs)

	if len(syncCalls) != 1 || syncCalls[0].ID != "1" {
		t.Fatalf("expected only the non-matching call in sync, got %v", syncCalls)
	}
	if len(asyncCalls) != 1 || asyncCalls[0].ID != "2" {
		t.Fatalf("expected only the matching call in async, got %v", asyncCalls)
	}
}

func TestPartitionAsyncWithoutJobsRunsEverythingSync(t *testing.T) {
	calls := []models.ToolCall{
		{ID: "1", Name: "Bash", Input: []byte(`{"command":"npm install"}`)},
	}
	syncCalls, asyncCalls := partitionAsync(calls, []string{"npm"}, nil)
	if len(syncCalls) != 1 || len(asyncCalls) != 0 {
		t.Fatalf("expected a nil jobs registry to disable async dispatch entirely, got sync=%v async=%v", syncCalls, asyncCalls)
	}
}

func TestTruncateCapsAtByteLimit(t *testing.T) {
	got := truncate("0123456789", 4)
	if got != "0123\n...(truncated)" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("expected short strings to pass through unchanged, got %q", got)
	}
}
